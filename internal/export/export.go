// Package export moves PluginRecord collections across the JSON
// boundary. Imports run through the same merge engine as a live
// refresh, so export-then-import round-trips a collection.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/plugwatch/plugwatch/internal/normalize"
	"github.com/plugwatch/plugwatch/internal/review"
)

// Marshal serializes records as a slug-ordered UTF-8 JSON array.
func Marshal(records []review.PluginRecord) ([]byte, error) {
	sorted := make([]review.PluginRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Slug < sorted[j].Slug })

	data, err := json.Marshal(sorted)
	if err != nil {
		return nil, fmt.Errorf("marshal records: %w", err)
	}
	return data, nil
}

// Importer merges an exported collection into the store.
type Importer struct {
	store     review.PluginStore
	directory review.Directory
	clock     review.Clock
	logger    *zap.Logger
}

// NewImporter builds an Importer. directory may be nil; absent names
// then degrade to slug-derived titles.
func NewImporter(store review.PluginStore, directory review.Directory, clock review.Clock, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{
		store:     store,
		directory: directory,
		clock:     clock,
		logger:    logger,
	}
}

type importElement struct {
	Slug    string          `json:"slug"`
	Name    string          `json:"name"`
	Reviews json.RawMessage `json:"reviews"`
}

// Import validates and merges a JSON payload. The shape check is
// all-or-nothing: any malformed element rejects the whole call before
// a single record is touched. Returns the number of records merged.
func (i *Importer) Import(ctx context.Context, payload []byte) (int, error) {
	var elements []importElement
	if err := json.Unmarshal(payload, &elements); err != nil {
		return 0, fmt.Errorf("%w: payload is not a record array: %v", review.ErrValidation, err)
	}

	type validated struct {
		element importElement
		reviews []review.Review
	}
	batch := make([]validated, 0, len(elements))
	for idx, element := range elements {
		if element.Slug == "" {
			return 0, fmt.Errorf("%w: element %d has no slug", review.ErrValidation, idx)
		}
		reviews, err := decodeReviews(element.Reviews)
		if err != nil {
			return 0, fmt.Errorf("%w: element %d (%s): %v", review.ErrValidation, idx, element.Slug, err)
		}
		batch = append(batch, validated{element: element, reviews: reviews})
	}

	now := i.clock.Now()
	for _, v := range batch {
		prior, err := i.store.Load(ctx, v.element.Slug)
		if err != nil && !errors.Is(err, review.ErrNotFound) {
			return 0, fmt.Errorf("load %s: %w", v.element.Slug, err)
		}
		name := i.resolveName(ctx, v.element)
		record := review.Reconcile(prior, v.element.Slug, name, v.reviews, now)
		if err := i.store.Save(ctx, record); err != nil {
			return 0, fmt.Errorf("save %s: %w", v.element.Slug, err)
		}
	}
	return len(batch), nil
}

func decodeReviews(raw json.RawMessage) ([]review.Review, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("reviews field is missing")
	}
	if trimmed[0] != '[' {
		return nil, fmt.Errorf("reviews field is not an array")
	}
	var reviews []review.Review
	if err := json.Unmarshal(trimmed, &reviews); err != nil {
		return nil, fmt.Errorf("reviews field malformed: %w", err)
	}
	return reviews, nil
}

func (i *Importer) resolveName(ctx context.Context, element importElement) string {
	if element.Name != "" {
		return normalize.CleanName(element.Name)
	}
	if i.directory != nil {
		if name, err := i.directory.LookupName(ctx, element.Slug); err == nil {
			return normalize.CleanName(name)
		}
		i.logger.Warn("import name lookup failed, using slug-derived name",
			zap.String("slug", element.Slug),
		)
	}
	return normalize.SlugTitle(element.Slug)
}
