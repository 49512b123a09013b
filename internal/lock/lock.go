// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package lock provides an optional per-transaction mutex backed by Redis.
// The mail bridge holds it around the read-modify-write of transaction
// metadata so two inbound emails for the same transaction cannot overwrite
// each other's message. It only serialises bridge instances sharing the same
// Redis; other writers of the metadata are not covered.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL bounds how long a crashed holder can block a transaction.
	DefaultTTL = 30 * time.Second

	// DefaultWait is how long Acquire waits for a busy lock.
	DefaultWait = 5 * time.Second

	// keyPrefix namespaces lock keys in Redis.
	keyPrefix = "mailbridge:txlock:"

	pollInterval = 50 * time.Millisecond
)

// ErrNotAcquired is returned when the lock stayed busy for the whole wait.
var ErrNotAcquired = errors.New("transaction lock not acquired")

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Release gives up a held lock.
type Release func(ctx context.Context) error

// Locker hands out per-transaction locks.
type Locker struct {
	rdb  *redis.Client
	ttl  time.Duration
	wait time.Duration
}

// NewLocker creates a Redis-backed locker. Zero durations use the defaults.
func NewLocker(rdb *redis.Client, ttl, wait time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if wait <= 0 {
		wait = DefaultWait
	}
	return &Locker{rdb: rdb, ttl: ttl, wait: wait}
}

// Acquire blocks until the lock for transactionID is held, the wait elapses
// or ctx is done.
func (l *Locker) Acquire(ctx context.Context, transactionID string) (Release, error) {
	key := keyPrefix + transactionID
	token := uuid.New().String()
	deadline := time.Now().Add(l.wait)

	for {
		// SET NX = set only if key does not exist. Returns true if the key was set.
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock SETNX: %w", err)
		}
		if ok {
			return func(ctx context.Context) error {
				if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil {
					return fmt.Errorf("lock release: %w", err)
				}
				return nil
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Ping checks the Redis connection.
func (l *Locker) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return l.rdb.Ping(ctx).Err()
}
