package search

import "errors"

var (
	// ErrIndexRepositoryRequired is returned when an index repository is
	// not provided.
	ErrIndexRepositoryRequired = errors.New("index repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrEmptyQuery is returned for a blank search query.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrUnknownIndex is returned when the queried index does not exist.
	ErrUnknownIndex = errors.New("unknown index")
)
