package memory

import (
	"context"

	"github.com/swarmlabs/hive/internal/ports"
)

// Noop is a vector memory with no backing store. Writes vanish, reads
// come back empty, and the cache never hits. Used when the memory path
// is unconfigured.
type Noop struct{}

// Store discards the observation.
func (Noop) Store(ctx context.Context, taskID, content, role string) error { return nil }

// Retrieve returns nothing.
func (Noop) Retrieve(ctx context.Context, query string) (string, error) { return "", nil }

// CheckCache never hits.
func (Noop) CheckCache(ctx context.Context, query string, threshold float64) (string, bool) {
	return "", false
}

var _ ports.VectorMemory = Noop{}
