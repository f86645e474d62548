package jobs

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("job not found")

// Store is durable CRUD over job records. Every call is an independent short
// operation; implementations keep no rows in memory.
type Store interface {
	Create(ctx context.Context, job Job) (Job, error)
	Get(ctx context.Context, id int64) (Job, error)
	List(ctx context.Context) (map[int64]Job, error)
	// Update replaces the full record. A missing id yields ErrNotFound.
	Update(ctx context.Context, id int64, job Job) (Job, error)
	Delete(ctx context.Context, id int64) (int64, error)
}
