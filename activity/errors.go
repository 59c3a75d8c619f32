package activity

import "errors"

var (
	// ErrListerRequired is returned when a document lister is not provided.
	ErrListerRequired = errors.New("document lister required")

	// ErrExtractorRequired is returned when a text extractor is not provided.
	ErrExtractorRequired = errors.New("text extractor required")

	// ErrChunkerRequired is returned when a chunker is not provided.
	ErrChunkerRequired = errors.New("chunker required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrUploaderRequired is returned when an index uploader is not provided.
	ErrUploaderRequired = errors.New("index uploader required")

	// ErrUnsupportedContentType indicates a blob whose content type the
	// extractor cannot process. Always a permanent failure.
	ErrUnsupportedContentType = errors.New("unsupported content type")

	// ErrBlobNotFound indicates the referenced blob does not exist.
	ErrBlobNotFound = errors.New("blob not found")
)
