// Package splitter implements the chunking activity with recursive
// character text splitting, producing overlapping chunks that preserve
// page provenance and byte offsets.
package splitter
