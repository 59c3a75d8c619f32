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
	"fmt"
	"sync"

	"github.com/poiesic/indexd/core"
	"github.com/poiesic/indexd/storage"
)

// journal is the in-memory view of one instance's append-only replay log.
// It is loaded once when the instance's orchestrator starts and owned
// exclusively by that orchestrator.
//
// Deduplication is by logical key rather than event position: a stage
// entry is keyed by the stage, an activity outcome by its call index.
// Attempt counts may differ between the original execution and a resumed
// one (a transient failure that burned three attempts before a crash may
// succeed first try after it), so positions are not comparable across
// runs but logical keys are.
//
// The mutex serializes appends from the chunk embedding fan-out, which
// journals concurrently into the same instance.
type journal struct {
	instanceID core.ID
	history    storage.HistoryRepository
	clock      Clock

	mu       sync.Mutex
	nextSeq  uint64
	stages   map[core.Stage]bool
	outcomes map[uint32]*core.HistoryEvent
	attempts map[uint32]int
}

// loadJournal reads the full history of an instance and indexes it for
// replay. A fresh instance yields an empty journal.
func loadJournal(ctx context.Context, history storage.HistoryRepository, clock Clock, instanceID core.ID) (*journal, error) {
	events, err := history.Events(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("load history for instance %d: %w", instanceID, err)
	}

	j := &journal{
		instanceID: instanceID,
		history:    history,
		clock:      clock,
		stages:     make(map[core.Stage]bool),
		outcomes:   make(map[uint32]*core.HistoryEvent),
		attempts:   make(map[uint32]int),
	}
	for _, event := range events {
		j.nextSeq = event.Seq + 1
		switch event.Kind {
		case core.EventStageEntered:
			j.stages[event.Stage] = true
		case core.EventActivityAttempt:
			if event.Attempt > j.attempts[event.Call] {
				j.attempts[event.Call] = event.Attempt
			}
		case core.EventActivityCompleted, core.EventActivityFailed:
			if prior, ok := j.outcomes[event.Call]; ok {
				return nil, fmt.Errorf("%w: call %d has outcomes at seq %d and %d",
					ErrHistoryDiverged, event.Call, prior.Seq, event.Seq)
			}
			j.outcomes[event.Call] = event
		}
	}
	return j, nil
}

// empty reports whether the instance has no history yet.
func (j *journal) empty() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextSeq == 0
}

// stageEntered reports whether the instance already recorded entering
// the stage.
func (j *journal) stageEntered(stage core.Stage) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stages[stage]
}

// outcome returns the terminal event for an activity call, or nil when
// the call has not finished.
func (j *journal) outcome(call uint32) *core.HistoryEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.outcomes[call]
}

// lastAttempt returns the highest attempt number recorded for the call,
// zero when the call has never been attempted.
func (j *journal) lastAttempt(call uint32) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.attempts[call]
}

// recordStage appends a stage-entered event unless the stage was already
// recorded, in which case the call is a replay no-op.
func (j *journal) recordStage(ctx context.Context, stage core.Stage) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.stages[stage] {
		return nil
	}
	if err := j.append(ctx, &core.HistoryEvent{
		Kind:  core.EventStageEntered,
		Stage: stage,
	}); err != nil {
		return err
	}
	j.stages[stage] = true
	return nil
}

// recordAttempt appends a failed attempt that will be retried.
func (j *journal) recordAttempt(ctx context.Context, call uint32, kind core.ActivityKind, stage core.Stage, attempt int, failure error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.append(ctx, &core.HistoryEvent{
		Kind:     core.EventActivityAttempt,
		Stage:    stage,
		Activity: kind,
		Call:     call,
		Attempt:  attempt,
		Error:    failure.Error(),
	}); err != nil {
		return err
	}
	if attempt > j.attempts[call] {
		j.attempts[call] = attempt
	}
	return nil
}

// recordCompleted appends the successful terminal outcome of a call with
// its result payload.
func (j *journal) recordCompleted(ctx context.Context, call uint32, kind core.ActivityKind, stage core.Stage, attempt int, payload []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	event := &core.HistoryEvent{
		Kind:     core.EventActivityCompleted,
		Stage:    stage,
		Activity: kind,
		Call:     call,
		Attempt:  attempt,
		Payload:  payload,
	}
	if err := j.append(ctx, event); err != nil {
		return err
	}
	j.outcomes[call] = event
	return nil
}

// recordFailed appends the failed terminal outcome of a call.
func (j *journal) recordFailed(ctx context.Context, call uint32, kind core.ActivityKind, stage core.Stage, attempt int, failure error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	event := &core.HistoryEvent{
		Kind:     core.EventActivityFailed,
		Stage:    stage,
		Activity: kind,
		Call:     call,
		Attempt:  attempt,
		Error:    failure.Error(),
	}
	if err := j.append(ctx, event); err != nil {
		return err
	}
	j.outcomes[call] = event
	return nil
}

// append requires j.mu to be held.
func (j *journal) append(ctx context.Context, event *core.HistoryEvent) error {
	event.InstanceID = j.instanceID
	event.Seq = j.nextSeq
	event.Timestamp = j.clock.Now()
	if err := j.history.Append(ctx, event); err != nil {
		return fmt.Errorf("append %s event for instance %d: %w",
			event.Kind, j.instanceID, err)
	}
	j.nextSeq++
	return nil
}
