// Package engine implements the durable orchestration of indexing jobs.
//
// A job lists documents under the requested prefixes and drives each one
// through a forward-only stage machine: extraction, chunking, a bounded
// embedding fan-out and a single index upload. Every stage transition and
// activity outcome is appended to a per-document replay journal before
// execution proceeds, so a crashed or restarted engine resumes instances
// without repeating completed side effects.
//
// Concurrency is bounded by a single shared limiter: admitted documents
// and in-flight chunk embeddings draw from the same capacity, and a
// document surrenders its slot while its embedding fan-out is running.
//
// Failed activity attempts are retried with exponential backoff under a
// pure, deterministic policy; transient failures that exhaust the attempt
// budget are converted to permanent ones. A job reaches the failed state
// only when it cannot list documents at all or when no document succeeds.
package engine
