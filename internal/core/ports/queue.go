package ports

import (
	"context"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

// TaskQueue hands tasks to out-of-process workers.
type TaskQueue interface {
	Enqueue(ctx context.Context, task domain.Task) error
}

// ArtifactStore persists generated archives. Keys are slash separated.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte) (uri string, err error)
	Get(ctx context.Context, uri string) ([]byte, error)
	Delete(ctx context.Context, uri string) error
}
