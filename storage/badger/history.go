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


package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/indexd/core"
	"github.com/poiesic/indexd/storage"
)

// HistoryRepository implements storage.HistoryRepository for BadgerDB.
// Each event is one key, so appends are atomic: a crash mid-append leaves
// the log without the event, never with a partial one.
type HistoryRepository struct {
	backend *Backend
}

var _ storage.HistoryRepository = (*HistoryRepository)(nil)

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(backend *Backend) *HistoryRepository {
	return &HistoryRepository{
		backend: backend,
	}
}

// Close implements storage.Repository. The shared backend is closed by its owner.
func (r *HistoryRepository) Close() error {
	return nil
}

// Append durably stores a history event under its (instance, seq) key.
// Returns storage.ErrDuplicateKey if the sequence number is already taken.
func (r *HistoryRepository) Append(ctx context.Context, event *core.HistoryEvent) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeHistoryKey(event.InstanceID, event.Seq)
		if _, err := tx.Get(key); err == nil {
			return storage.ErrDuplicateKey
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if err := tx.Set(key, storage.MarshalHistoryEvent(event)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Events returns the full history of an instance in sequence order.
func (r *HistoryRepository) Events(ctx context.Context, instanceID core.ID) ([]*core.HistoryEvent, error) {
	var events []*core.HistoryEvent

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeHistoryScanPrefix(instanceID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				event, err := storage.UnmarshalHistoryEvent(val)
				if err != nil {
					return err
				}
				events = append(events, event)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}
	return events, nil
}
