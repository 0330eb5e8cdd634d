// Package source implements the upstream adapters. Each adapter translates
// one external API's response into canonical feed posts and keeps its
// failures to itself: an outage, auth problem, or malformed payload becomes
// an empty result for that topic, never an error for the pipeline.
package source

import "context"

// TokenProvider supplies a live bearer token for adapters that need one.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}
