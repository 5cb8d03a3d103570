package memory

import (
	"context"

	memoryModel "github.com/zhouzirui/serene/backend/internal/model/memory"
)

// Backend persists the complete fact set. Save always receives the full,
// ordered set and replaces whatever was stored before.
type Backend interface {
	Load(ctx context.Context) ([]memoryModel.Fact, error)
	Save(ctx context.Context, facts []memoryModel.Fact) error
}
