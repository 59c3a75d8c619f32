// Package server exposes the indexing pipeline over HTTP: job submission
// and status polling, semantic search, the blob-created event trigger and
// a liveness probe.
package server
