package review

import (
	"context"
	"io"
	"time"
)

// PluginStore persists PluginRecord aggregates keyed by slug.
type PluginStore interface {
	Load(ctx context.Context, slug string) (PluginRecord, error)
	Save(ctx context.Context, record PluginRecord) error
	Delete(ctx context.Context, slug string) error
	List(ctx context.Context) ([]PluginRecord, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Transport resolves a logical resource URL through whatever routes it
// manages and returns the first successful payload.
type Transport interface {
	Fetch(ctx context.Context, target string) (FetchResponse, error)
}

// Extractor turns one fetched document into raw field bundles,
// in document order.
type Extractor interface {
	Extract(body []byte) ([]RawReview, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes run-completed events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Directory looks up the upstream descriptor for a slug.
type Directory interface {
	LookupName(ctx context.Context, slug string) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
