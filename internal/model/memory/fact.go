package memory

// Fact is a durable statement about the user retained across sessions.
type Fact struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}
