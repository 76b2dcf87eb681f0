package jobs

import "context"

// SnapshotStore persists an owner's visible list so it survives restarts and
// can be shared by several dashboards pointed at the same database.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, owner string, records []Record) error
	LoadSnapshot(ctx context.Context, owner string) ([]Record, error)
	Close() error
}
