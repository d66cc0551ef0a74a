package repository

import (
	"context"
	"time"

	"github.com/thaddeuskkr/whatsapp/internal/domain"
)

// Repository is the durable message store. FindByWID looks a record up by
// the external key assigned by the chat bridge; FindByID by the store's own
// primary id.
type Repository interface {
	Insert(ctx context.Context, msg *domain.Message) (*domain.Message, error)
	FindByWID(ctx context.Context, wid string) (*domain.Message, error)
	FindByID(ctx context.Context, id string) (*domain.Message, error)
	Update(ctx context.Context, msg *domain.Message) error

	// Range queries for the catch-up endpoint. A nil `after` returns the
	// newest `limit` records per class, ordered newest first; a non-nil
	// `after` returns everything strictly after it, unbounded.
	ListCreated(ctx context.Context, after *time.Time, limit int) ([]*domain.Message, error)
	ListEdited(ctx context.Context, after *time.Time, limit int) ([]*domain.Message, error)
	ListRevoked(ctx context.Context, after *time.Time, limit int) ([]*domain.Message, error)
}
