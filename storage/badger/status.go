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
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/indexd/core"
	"github.com/poiesic/indexd/storage"
)

// StatusRepository implements storage.StatusRepository for BadgerDB.
type StatusRepository struct {
	backend *Backend
}

var _ storage.StatusRepository = (*StatusRepository)(nil)

// NewStatusRepository creates a new StatusRepository.
func NewStatusRepository(backend *Backend) *StatusRepository {
	return &StatusRepository{
		backend: backend,
	}
}

// Close implements storage.Repository. The shared backend is closed by its owner.
func (r *StatusRepository) Close() error {
	return nil
}

// PutJobStatus stores a job status record, replacing any previous one.
func (r *StatusRepository) PutJobStatus(ctx context.Context, record *core.JobStatusRecord) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeJobStatusKey(record.JobID)
		if err := tx.Set(key, storage.MarshalJobStatusRecord(record)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetJobStatus retrieves a job status record by job ID.
func (r *StatusRepository) GetJobStatus(ctx context.Context, jobID string) (*core.JobStatusRecord, error) {
	var record *core.JobStatusRecord

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeJobStatusKey(jobID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var unmarshalErr error
			record, unmarshalErr = storage.UnmarshalJobStatusRecord(val)
			return unmarshalErr
		})
	}, false)

	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListJobStatuses returns every stored job status record, newest first.
func (r *StatusRepository) ListJobStatuses(ctx context.Context) ([]*core.JobStatusRecord, error) {
	var records []*core.JobStatusRecord

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(jobStatusPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				record, err := storage.UnmarshalJobStatusRecord(val)
				if err != nil {
					return err
				}
				records = append(records, record)
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

	slices.SortFunc(records, func(a, b *core.JobStatusRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return records, nil
}

// PutDocumentStatus stores a document status record. Writes that would move
// a document to an earlier stage are dropped, so pollers never observe a
// stage regression.
func (r *StatusRepository) PutDocumentStatus(ctx context.Context, record *core.DocumentStatusRecord) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocStatusKey(record.JobID, record.BlobRef)

		item, err := tx.Get(key)
		if err == nil {
			var existing *core.DocumentStatusRecord
			err = item.Value(func(val []byte) error {
				var unmarshalErr error
				existing, unmarshalErr = storage.UnmarshalDocumentStatusRecord(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}
			if existing.Stage > record.Stage {
				r.backend.logger.Debug("dropping stale document status write",
					"job", record.JobID, "blob", record.BlobRef,
					"stored", existing.Stage, "incoming", record.Stage)
				return nil
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		if err := tx.Set(key, storage.MarshalDocumentStatusRecord(record)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetDocumentStatuses returns the document status records for a job,
// ordered by blob reference.
func (r *StatusRepository) GetDocumentStatuses(ctx context.Context, jobID string) ([]*core.DocumentStatusRecord, error) {
	var records []*core.DocumentStatusRecord

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeDocStatusScanPrefix(jobID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				record, err := storage.UnmarshalDocumentStatusRecord(val)
				if err != nil {
					return err
				}
				records = append(records, record)
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
	return records, nil
}

// ListNonTerminalJobs returns the IDs of jobs whose state is not terminal.
func (r *StatusRepository) ListNonTerminalJobs(ctx context.Context) ([]string, error) {
	records, err := r.ListJobStatuses(ctx)
	if err != nil {
		return nil, err
	}

	var jobIDs []string
	for _, record := range records {
		if !record.State.Terminal() {
			jobIDs = append(jobIDs, record.JobID)
		}
	}
	return jobIDs, nil
}
