package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"paperwhisper/internal/models"
	"paperwhisper/internal/util"

	"github.com/go-redis/redis/v8"
)

const (
	keyPrefix         = "paperwhisper:session:"
	maxUpdateAttempts = 5
)

// RedisStore keeps each session as one JSON value. Every write refreshes the
// TTL; a zero TTL disables expiry.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func key(id string) string { return keyPrefix + id }

func (r *RedisStore) Get(ctx context.Context, id string) (*models.Session, error) {
	return r.get(ctx, r.client, id)
}

func (r *RedisStore) get(ctx context.Context, c redis.Cmdable, id string) (*models.Session, error) {
	data, err := c.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", util.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, util.Transient(fmt.Errorf("redis get session %s: %w", id, err))
	}
	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

func (r *RedisStore) Create(ctx context.Context, s *models.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.SessionID, err)
	}
	ok, err := r.client.SetNX(ctx, key(s.SessionID), data, r.ttl).Result()
	if err != nil {
		return util.Transient(fmt.Errorf("redis create session %s: %w", s.SessionID, err))
	}
	if !ok {
		return fmt.Errorf("%w: session %s already exists", util.ErrConflict, s.SessionID)
	}
	return nil
}

// Update runs fn inside WATCH/MULTI and retries when another writer changed
// the session in between.
func (r *RedisStore) Update(ctx context.Context, id string, fn func(*models.Session) error) (*models.Session, error) {
	var out *models.Session
	txf := func(tx *redis.Tx) error {
		s, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode session %s: %w", id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key(id), data, r.ttl)
			return nil
		})
		if err == nil {
			out = s
		}
		return err
	}
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key(id))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, util.Transient(fmt.Errorf("session %s: too much concurrent modification", id))
}

func (r *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Del(ctx, key(id)).Result()
	if err != nil {
		return false, util.Transient(fmt.Errorf("redis delete session %s: %w", id, err))
	}
	return n > 0, nil
}
