// Copyright 2025 Poiesic Systems
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

package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limiter bounds concurrent work units across the engine. Document
// admission and chunk embedding calls draw from the same capacity.
// Waiters are served in FIFO order and acquisition respects context
// cancellation.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int
	held     atomic.Int64
}

// NewLimiter creates a limiter with the given capacity.
func NewLimiter(capacity int) *Limiter {
	return &Limiter{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}
}

// Acquire blocks until a unit of capacity is available or the context is
// cancelled. On success it returns a token that must be released exactly
// once; releasing more than once is a no-op.
func (l *Limiter) Acquire(ctx context.Context) (*Token, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	l.held.Add(1)
	return &Token{limiter: l}, nil
}

// Capacity returns the limiter's total capacity.
func (l *Limiter) Capacity() int {
	return l.capacity
}

// Held returns the number of currently held tokens.
func (l *Limiter) Held() int {
	return int(l.held.Load())
}

// Token is one unit of limiter capacity.
type Token struct {
	limiter *Limiter
	once    sync.Once
}

// Release returns the capacity to the limiter. Safe to call multiple
// times; only the first call has effect.
func (t *Token) Release() {
	t.once.Do(func() {
		t.limiter.held.Add(-1)
		t.limiter.sem.Release(1)
	})
}
