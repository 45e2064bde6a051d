package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wastetrack/wastetrack/internal/database"
)

// OAuthStateRepository keeps single-use OAuth state values in Redis
type OAuthStateRepository struct {
	rdb    *database.Redis
	prefix string
}

// NewOAuthStateRepository creates a new OAuthStateRepository
func NewOAuthStateRepository(rdb *database.Redis) *OAuthStateRepository {
	return &OAuthStateRepository{rdb: rdb, prefix: "oauth:state:"}
}

// Save stores state until ttl elapses
func (r *OAuthStateRepository) Save(ctx context.Context, state string, ttl time.Duration) error {
	ok, err := r.rdb.SetNX(ctx, r.prefix+state, "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save oauth state: %w", err)
	}
	if !ok {
		return ErrDuplicate
	}
	return nil
}

// Consume deletes state and reports whether it existed
func (r *OAuthStateRepository) Consume(ctx context.Context, state string) (bool, error) {
	_, err := r.rdb.Take(ctx, r.prefix+state)
	if errors.Is(err, database.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	return true, nil
}
