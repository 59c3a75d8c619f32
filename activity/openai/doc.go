// Package openai implements the embedding activity against OpenAI-compatible
// embedding APIs, including local services that expose the same protocol.
package openai
