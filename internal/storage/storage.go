// Package storage abstracts the object-storage service behind two calls: Put
// writes an object and Sign issues a time-limited download URL for it.
//
// Backends (Supabase Storage REST, S3-compatible, in-memory) are swappable
// without touching the export pipeline; callers depend on ObjectStore only.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	u "savecsv/internal/utils"
)

// PutOptions mirrors the upload options of the storage service.
type PutOptions struct {
	ContentType  string
	Upsert       bool
	CacheControl string
}

// ObjectStore is the capability the export pipeline needs.
type ObjectStore interface {
	Put(ctx context.Context, bucket, path string, data []byte, opts PutOptions) error
	Sign(ctx context.Context, bucket, path string, expiry time.Duration) (string, error)
}

var (
	// ErrObjectNotFound is returned when signing or reading a missing object.
	ErrObjectNotFound = errors.New("Object not found")
	// ErrObjectExists is returned by a non-upsert write to an existing path.
	ErrObjectExists = errors.New("The resource already exists")
)

// APIError carries the diagnostic reply of a remote storage service. Error()
// returns the service's own message so it can be surfaced verbatim.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("storage responded with status %d", e.StatusCode)
}

// New builds the backend selected by cfg.Driver. It fails when the driver's
// credentials are missing; callers decide whether that is fatal.
func New(ctx context.Context, cfg u.StorageConfig) (ObjectStore, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case u.DriverSupabase:
		return NewSupabaseStore(cfg.SupabaseURL, cfg.ServiceRoleKey), nil
	case u.DriverS3:
		return NewS3Store(ctx, cfg.S3)
	case u.DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
