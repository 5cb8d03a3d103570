package utils

// Chunks splits text into pieces of at most size runes. Multi-byte
// characters are never split.
func Chunks(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size < 1 {
		size = 1
	}
	runes := []rune(text)
	out := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}
