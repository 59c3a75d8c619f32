package server

import "errors"

var (
	// ErrEngineRequired is returned when an engine is not provided.
	ErrEngineRequired = errors.New("engine required")

	// ErrSearcherRequired is returned when a searcher is not provided.
	ErrSearcherRequired = errors.New("searcher required")
)
