// Package storage defines the persistence interface for entities and their sources.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/contentdb/internal/models"
)

var (
	// ErrNotFound is returned when an entity or source does not exist.
	ErrNotFound = errors.New("not found")
	// ErrCapacity is returned when no free row is left for a new source.
	ErrCapacity = errors.New("row capacity exhausted")
)

// Storage defines entity and source persistence operations.
type Storage interface {
	// Entity operations
	PutEntity(ctx context.Context, e *models.Entity) error
	GetEntity(ctx context.Context, id int) (*models.Entity, error)
	DeleteEntity(ctx context.Context, id int) error
	ListEntities(ctx context.Context, offset, limit int) ([]*models.Entity, error)
	EntityIDs(ctx context.Context) ([]int, error)

	// Source operations map ingested files to stable entity ids.
	ResolveSource(ctx context.Context, key string, maxRows int) (*Source, error)
	SetSourceHash(ctx context.Context, key, hash string) error
	ForgetSource(ctx context.Context, key string) (*Source, error)
	SourcesWithPrefix(ctx context.Context, prefix string) ([]*Source, error)

	// Stats
	CountEntities(ctx context.Context) (int64, error)
	CountSources(ctx context.Context) (int64, error)

	Close() error
}

// Source is an ingested file bound to an entity id.
type Source struct {
	Key      string
	EntityID int
	// Hash is the content fingerprint of the last successful ingest, empty if none.
	Hash string
}
