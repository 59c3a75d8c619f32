// Package mock provides deterministic test doubles for every pipeline
// activity. Each mock supports behavior injection through function fields
// and records call counts for assertions.
package mock
