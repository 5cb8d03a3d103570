package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	memoryModel "github.com/zhouzirui/serene/backend/internal/model/memory"
)

// legacyCreatedAt is stamped on facts upgraded from the bare string format.
const legacyCreatedAt = "2024-01-01"

// FileBackend stores facts as an indented JSON array in a single file.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) Path() string {
	return b.path
}

// Load reads the file. A missing file is an empty store. Files written by
// older releases hold bare strings; those are upgraded in memory only, the
// file is rewritten on the next mutation.
func (b *FileBackend) Load(_ context.Context) ([]memoryModel.Fact, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read memory file %s: %w", b.path, err)
	}
	facts, err := decodeFacts(data)
	if err != nil {
		return nil, fmt.Errorf("decode memory file %s: %w", b.path, err)
	}
	return facts, nil
}

// Save writes to a temp file in the same directory and renames it over the
// target so readers never observe a partial array.
func (b *FileBackend) Save(_ context.Context, facts []memoryModel.Fact) error {
	if facts == nil {
		facts = []memoryModel.Fact{}
	}
	data, err := json.MarshalIndent(facts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode memories: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create memory dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".memories-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp memory file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write memories: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync memories: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp memory file: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("replace memory file %s: %w", b.path, err)
	}
	return nil
}

func decodeFacts(data []byte) ([]memoryModel.Fact, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	if first := bytes.TrimSpace(items[0]); len(first) > 0 && first[0] == '"' {
		facts := make([]memoryModel.Fact, 0, len(items))
		for i, item := range items {
			fact, err := decodeLegacyEntry(item, i)
			if err != nil {
				return nil, fmt.Errorf("legacy entry %d: %w", i, err)
			}
			facts = append(facts, fact)
		}
		return facts, nil
	}

	facts := make([]memoryModel.Fact, 0, len(items))
	for i, item := range items {
		var fact memoryModel.Fact
		if err := json.Unmarshal(item, &fact); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		facts = append(facts, fact)
	}
	return facts, nil
}

// decodeLegacyEntry upgrades a bare string. Records appended to a legacy file
// after it was first written are kept, filling in what they lack.
func decodeLegacyEntry(item json.RawMessage, index int) (memoryModel.Fact, error) {
	var text string
	if err := json.Unmarshal(item, &text); err == nil {
		return memoryModel.Fact{ID: strconv.Itoa(index), Text: text, CreatedAt: legacyCreatedAt}, nil
	}
	var fact memoryModel.Fact
	if err := json.Unmarshal(item, &fact); err != nil {
		return memoryModel.Fact{}, err
	}
	if fact.ID == "" {
		fact.ID = strconv.Itoa(index)
	}
	if fact.CreatedAt == "" {
		fact.CreatedAt = legacyCreatedAt
	}
	return fact, nil
}
