package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	platformredis "github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/redis"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/models"
	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
)

// RedisReadTokens holds temporary read access tokens in Redis, keyed by
// token ID with the remaining lifetime as the key TTL. Expiry is then
// enforced by Redis itself and no sweeper is needed.
type RedisReadTokens struct {
	client *platformredis.Client
}

// NewRedisReadTokens constructs a Redis-backed read token store.
func NewRedisReadTokens(client *platformredis.Client) *RedisReadTokens {
	return &RedisReadTokens{client: client}
}

func tokenKey(tokenID id.TokenID) string {
	return "read-token:" + tokenID.String()
}

func profileTokensKey(profileID id.ProfileID) string {
	return "read-tokens:profile:" + profileID.String()
}

type storedReadToken struct {
	ProfileID string    `json:"profile_id"`
	TokenHash string    `json:"token_hash"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *RedisReadTokens) CreateReadToken(ctx context.Context, token *models.TemporaryReadAccessToken) error {
	now := time.Now()
	if token.CreatedAt.IsZero() {
		token.CreatedAt = now
	}
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return ErrExpired
	}

	payload, err := json.Marshal(storedReadToken{
		ProfileID: token.ProfileID.String(),
		TokenHash: token.TokenHash,
		ExpiresAt: token.ExpiresAt,
		CreatedAt: token.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal read token: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, tokenKey(token.ID), payload, ttl)
	pipe.SAdd(ctx, profileTokensKey(token.ProfileID), token.ID.String())
	pipe.Expire(ctx, profileTokensKey(token.ProfileID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store read token: %w", err)
	}
	return nil
}

func (s *RedisReadTokens) GetReadToken(ctx context.Context, tokenID id.TokenID) (*models.TemporaryReadAccessToken, error) {
	payload, err := s.client.Get(ctx, tokenKey(tokenID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load read token: %w", err)
	}

	var stored storedReadToken
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, fmt.Errorf("unmarshal read token: %w", err)
	}
	profileID, err := id.ParseProfileID(stored.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("parse read token profile: %w", err)
	}

	token := &models.TemporaryReadAccessToken{
		ID:        tokenID,
		ProfileID: profileID,
		TokenHash: stored.TokenHash,
		ExpiresAt: stored.ExpiresAt,
		CreatedAt: stored.CreatedAt,
	}
	// TTL expiry normally removes the key first, but guard against clock skew.
	if token.Expired(time.Now()) {
		return nil, ErrExpired
	}
	return token, nil
}

func (s *RedisReadTokens) DeleteReadTokens(ctx context.Context, profileID id.ProfileID) error {
	tokenIDs, err := s.client.SMembers(ctx, profileTokensKey(profileID)).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("list profile read tokens: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, tokenID := range tokenIDs {
		pipe.Del(ctx, "read-token:"+tokenID)
	}
	pipe.Del(ctx, profileTokensKey(profileID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete profile read tokens: %w", err)
	}
	return nil
}
