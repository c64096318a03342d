package storage

import (
	"context"

	"f2_scrooper/models"
)

// Mirror republishes a freshly written document somewhere else. Mirrors are
// best effort; the local file stays the source of truth.
type Mirror interface {
	Name() string
	Publish(ctx context.Context, kind models.DataKind, body []byte, fingerprint string) error
}
