package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Retrieve when no object exists under the name
var ErrNotFound = errors.New("object not found")

// StorageInterface defines the contract for storage operations
type StorageInterface interface {
	Store(ctx context.Context, name string, data []byte) error
	Retrieve(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// New returns Azure blob storage when an account is configured and a local directory store otherwise
func New(ctx context.Context, account, container, dir string) (StorageInterface, error) {
	if account != "" {
		azure, err := NewAzureStorage(ctx, account, container)
		if err != nil {
			return nil, err
		}
		return azure, nil
	}
	files, err := NewFileStorage(dir)
	if err != nil {
		return nil, err
	}
	return files, nil
}
