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
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/indexd/core"
)

// Decision is the retry policy's verdict on a failed attempt.
type Decision struct {
	// Retry is true when another attempt is allowed.
	Retry bool

	// After is the backoff before the next attempt; zero when Retry
	// is false.
	After time.Duration
}

// RetryPolicy decides whether a failed activity attempt is retried and
// how long to back off first. It is a pure function of its inputs: no
// clock reads, no random source, so replays reach identical decisions.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewRetryPolicy creates a policy from the engine configuration.
func NewRetryPolicy(cfg *Config) RetryPolicy {
	return RetryPolicy{
		maxAttempts: cfg.MaxRetryAttempts,
		baseDelay:   cfg.RetryBaseDelay,
		maxDelay:    cfg.RetryMaxDelay,
	}
}

// MaxAttempts returns the total attempt cap, including the first attempt.
func (p RetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// Decide evaluates the failure of the given attempt (1-based). Permanent
// failures and exhausted budgets are never retried; transient failures
// back off exponentially with deterministic jitter.
func (p RetryPolicy) Decide(attempt int, kind core.ErrorKind) Decision {
	if kind == core.ErrorKindPermanent {
		return Decision{}
	}
	if attempt >= p.maxAttempts {
		return Decision{}
	}

	// baseDelay * 2^(attempt-1), capped.
	delay := p.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.maxDelay {
			delay = p.maxDelay
			break
		}
	}

	delay += jitterFor(attempt, delay)
	if delay > p.maxDelay {
		delay = p.maxDelay
	}
	return Decision{Retry: true, After: delay}
}

// jitterFor derives up to 25% extra backoff from the attempt number alone.
// Hash-based rather than random so the policy stays deterministic under
// replay while still desynchronizing concurrent retry storms across
// attempts.
func jitterFor(attempt int, delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}
	h, _ := blake2b.New(8, nil)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(attempt))
	h.Write(buf[:])
	sum := h.Sum(nil)
	fraction := binary.LittleEndian.Uint64(sum) % 1000
	return delay / 4 * time.Duration(fraction) / 1000
}
