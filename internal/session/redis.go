package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "shopify_session:"
	shopKeyPrefix    = "shopify_sessions_by_shop:"
)

// NewRedisClient creates a go-redis client from a URL (e.g., "redis://localhost:6379").
func NewRedisClient(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

type redisRecord struct {
	Shop           string `json:"shop"`
	State          string `json:"state,omitempty"`
	IsOnline       bool   `json:"isOnline"`
	Scope          string `json:"scope,omitempty"`
	AccessTokenEnc string `json:"accessTokenEnc"`
	Expires        int64  `json:"expires,omitempty"`
}

type RedisStore struct {
	rdb    *goredis.Client
	sealer TokenSealer
	clock  clockwork.Clock
}

func NewRedisStore(rdb *goredis.Client, sealer TokenSealer, clock clockwork.Clock) *RedisStore {
	return &RedisStore{rdb: rdb, sealer: sealer, clock: clock}
}

func sessionKey(id string) string { return sessionKeyPrefix + id }
func shopKey(shop string) string  { return shopKeyPrefix + shop }

func (r *RedisStore) StoreSession(ctx context.Context, s *Session) error {
	enc, err := r.sealer.Seal(s.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}

	rec := redisRecord{
		Shop:           s.Shop,
		State:          s.State,
		IsOnline:       s.IsOnline,
		Scope:          s.Scope,
		AccessTokenEnc: enc,
	}
	var ttl time.Duration
	if s.Expires != nil {
		rec.Expires = s.Expires.Unix()
		ttl = s.Expires.Sub(r.clock.Now())
		if ttl <= 0 {
			ttl = time.Second
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(s.ID), data, ttl)
	pipe.SAdd(ctx, shopKey(s.Shop), s.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (r *RedisStore) LoadSession(ctx context.Context, id string) (*Session, error) {
	data, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var rec redisRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	token, err := r.sealer.Open(rec.AccessTokenEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt token: %w", err)
	}

	s := &Session{
		ID:          id,
		Shop:        rec.Shop,
		State:       rec.State,
		IsOnline:    rec.IsOnline,
		Scope:       rec.Scope,
		AccessToken: token,
	}
	if rec.Expires != 0 {
		t := time.Unix(rec.Expires, 0).UTC()
		s.Expires = &t
	}
	return s, nil
}

func (r *RedisStore) DeleteSession(ctx context.Context, id string) error {
	s, err := r.LoadSession(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.SRem(ctx, shopKey(s.Shop), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *RedisStore) FindSessionsByShop(ctx context.Context, shop string) ([]*Session, error) {
	ids, err := r.rdb.SMembers(ctx, shopKey(shop)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list shop sessions: %w", err)
	}

	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		s, err := r.LoadSession(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// expired by TTL; drop the stale index entry
			_ = r.rdb.SRem(ctx, shopKey(shop), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
