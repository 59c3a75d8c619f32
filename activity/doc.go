// Package activity defines the contracts of the external operations the
// indexing pipeline calls: document listing, text extraction, chunking,
// embedding generation and index upload.
//
// The orchestration engine treats these as opaque, potentially failing
// collaborators. Implementations signal retryability through the core error
// taxonomy: wrap failures with core.Transient or core.Permanent. Unwrapped
// errors are treated as transient.
package activity
