// internal/roomstore/redis.go
//
// Redis implementation of the room Store interface.
// Responsibilities:
//   - Optimistic per-document transactions via WATCH/MULTI/EXEC: the mutator
//     runs against the watched value and the EXEC fails if another writer
//     touched the key, in which case the whole transaction retries against
//     fresh state.
//   - Snapshot fan-out via pub/sub: every committed document is published on
//     a per-room channel, so watchers on any process see every change.
//
// Documents are stored as JSON under room:<code> with a TTL of twice the
// advisory room expiry, which keeps abandoned rooms from accumulating.

package roomstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/monguess/go-server/internal/room"
)

const redisMaxRetries = 16

type redisStore struct {
	client *redis.Client
}

// NewRedis connects to redis and verifies the connection.
func NewRedis(addr, password string, db int) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("roomstore: redis ping: %w", err)
	}
	log.Info().Str("addr", addr).Msg("room store: redis ready")
	return &redisStore{client: client}, nil
}

func roomKey(code string) string     { return "room:" + code }
func roomChannel(code string) string { return "room:updates:" + code }

func (r *redisStore) Get(ctx context.Context, code string) (*room.Doc, error) {
	raw, err := r.client.Get(ctx, roomKey(code)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeDoc(raw)
}

func (r *redisStore) Update(ctx context.Context, code string, fn UpdateFunc) (*room.Doc, error) {
	key := roomKey(code)

	var result *room.Doc
	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		exists := true
		if err == redis.Nil {
			exists = false
		} else if err != nil {
			return err
		}

		var work *room.Doc
		if exists {
			work, err = decodeDoc(raw)
			if err != nil {
				return err
			}
		} else {
			work = emptyDoc(code)
		}

		err = fn(work)
		if err == ErrNoChange {
			if !exists {
				return ErrNotFound
			}
			// Hand back the stored document, not the mutator's working
			// copy, so a partial mutation before the abort never leaks.
			result, err = decodeDoc(raw)
			return err // nothing queued; EXEC is a harmless no-op
		}
		if err != nil {
			return err
		}

		stampGuesses(work, time.Now().UTC())
		data, err := json.Marshal(work)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 2*room.RoomExpiry)
			pipe.Publish(ctx, roomChannel(code), data)
			return nil
		})
		if err != nil {
			return err
		}
		result = work
		return nil
	}

	for attempt := 0; attempt < redisMaxRetries; attempt++ {
		err := r.client.Watch(ctx, txn, key)
		if err == redis.TxFailedErr {
			continue // key changed under us, retry against fresh state
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("roomstore: update contention on room %s", code)
}

func (r *redisStore) Watch(ctx context.Context, code string) (<-chan *room.Doc, func(), error) {
	sub := r.client.Subscribe(ctx, roomChannel(code))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan *room.Doc, watchBuffer)

	// Seed with the current snapshot so late subscribers reconstruct state
	// without waiting for the next commit.
	if d, err := r.Get(ctx, code); err == nil {
		out <- d
	}

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			d, err := decodeDoc(msg.Payload)
			if err != nil {
				log.Warn().Err(err).Str("room", code).Msg("room store: bad snapshot payload")
				continue
			}
			offerLatest(out, d)
		}
	}()

	cancel := func() { _ = sub.Close() }
	return out, cancel, nil
}

func (r *redisStore) Close() error {
	return r.client.Close()
}
