package port

import "context"

// SnapshotArchive defines optional off-host archival of completed snapshot
// blobs. Archival runs after local persistence succeeds and never blocks the
// reassembly path.
type SnapshotArchive interface {
	// Store uploads the blob under the given key and returns its location
	Store(ctx context.Context, key string, body []byte) (string, error)
}
