package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pesio-ai/be-ar-invoicing/internal/errors"
)

const oauthStatePrefix = "xero:oauth_state:"

// PendingAuthorization is what the callback needs to finish a consent that
// cannot travel in the state parameter.
type PendingAuthorization struct {
	Verifier  string    `json:"verifier"`
	CreatedAt time.Time `json:"created_at"`
}

// OAuthStateRepository keeps one-time authorization nonces in Redis.
type OAuthStateRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewOAuthStateRepository creates a new OAuth state repository
func NewOAuthStateRepository(rdb redis.Cmdable, ttl time.Duration) *OAuthStateRepository {
	return &OAuthStateRepository{rdb: rdb, ttl: ttl}
}

// Save stores p under nonce. A nonce can only be stored once.
func (r *OAuthStateRepository) Save(ctx context.Context, nonce string, p PendingAuthorization) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to encode oauth state")
	}
	ok, err := r.rdb.SetNX(ctx, oauthStatePrefix+nonce, data, r.ttl).Result()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeUnavailable, "failed to store oauth state")
	}
	if !ok {
		return errors.New(errors.ErrCodeConflict, "oauth state already exists")
	}
	return nil
}

// Consume returns and deletes the state for nonce. A second call for the
// same nonce is a not-found error, so a callback cannot be replayed.
func (r *OAuthStateRepository) Consume(ctx context.Context, nonce string) (*PendingAuthorization, error) {
	data, err := r.rdb.GetDel(ctx, oauthStatePrefix+nonce).Bytes()
	if err == redis.Nil {
		return nil, errors.NotFound("oauth state", nonce)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to load oauth state")
	}

	var p PendingAuthorization
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to decode oauth state")
	}
	return &p, nil
}
