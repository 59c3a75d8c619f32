// Package search implements the query side of the index: the upload
// activity that writes finished documents into a named index, and the
// searcher that embeds queries and ranks similar chunks.
package search
