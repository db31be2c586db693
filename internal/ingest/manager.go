package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/plugwatch/plugwatch/internal/metrics"
	"github.com/plugwatch/plugwatch/internal/normalize"
	"github.com/plugwatch/plugwatch/internal/review"
)

// ManagerConfig controls run execution.
type ManagerConfig struct {
	// RunTimeout bounds one whole refresh run.
	RunTimeout time.Duration
	// Topic, when set with a publisher, receives run-completed events.
	Topic string
	// ArchivePrefix roots raw payload archival paths.
	ArchivePrefix string
	// ContentType is recorded on archived payloads.
	ContentType string
}

// Manager starts refresh runs and tracks their outcomes. It enforces
// the single-run-per-slug discipline: the store's read-then-write is a
// critical section per slug, and the in-flight marker is how this
// process keeps two refreshes for one slug from ever overlapping.
type Manager struct {
	store     review.PluginStore
	driver    *Driver
	directory review.Directory
	archive   review.BlobStore
	publisher review.Publisher
	clock     review.Clock
	idGen     review.IDGenerator
	cfg       ManagerConfig
	logger    *zap.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	runs     map[string]*review.Run
}

// NewManager constructs a Manager. archive and publisher may be nil.
func NewManager(
	store review.PluginStore,
	driver *Driver,
	directory review.Directory,
	archive review.BlobStore,
	publisher review.Publisher,
	clock review.Clock,
	idGen review.IDGenerator,
	cfg ManagerConfig,
	logger *zap.Logger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	return &Manager{
		store:     store,
		driver:    driver,
		directory: directory,
		archive:   archive,
		publisher: publisher,
		clock:     clock,
		idGen:     idGen,
		cfg:       cfg,
		logger:    logger,
		inflight:  make(map[string]struct{}),
		runs:      make(map[string]*review.Run),
	}
}

// StartRefresh begins an asynchronous refresh run for a slug and
// returns its run id. A second call for the same slug while a run is
// in flight fails with review.ErrRunInFlight.
func (m *Manager) StartRefresh(slug string, mode review.FeedMode) (string, error) {
	if mode != review.ModeListing && mode != review.ModeSyndication {
		return "", fmt.Errorf("%w: unknown mode %q", review.ErrValidation, mode)
	}

	runID, err := m.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}

	m.mu.Lock()
	if _, busy := m.inflight[slug]; busy {
		m.mu.Unlock()
		return "", fmt.Errorf("%s: %w", slug, review.ErrRunInFlight)
	}
	m.inflight[slug] = struct{}{}
	m.runs[runID] = &review.Run{
		ID:      runID,
		Slug:    slug,
		Mode:    mode,
		Status:  review.RunStatusRunning,
		Started: m.clock.Now(),
	}
	m.mu.Unlock()

	go m.execute(runID, slug, mode)
	return runID, nil
}

// GetRun returns the state of a run.
func (m *Manager) GetRun(runID string) (review.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return review.Run{}, fmt.Errorf("run %s: %w", runID, review.ErrNotFound)
	}
	return *run, nil
}

func (m *Manager) execute(runID, slug string, mode review.FeedMode) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RunTimeout)
	defer cancel()

	counters, err := m.refresh(ctx, runID, slug, mode)

	m.mu.Lock()
	run := m.runs[runID]
	now := m.clock.Now()
	run.Finished = &now
	run.Counters = counters
	if err != nil {
		run.Status = review.RunStatusFailed
		run.ErrorText = err.Error()
	} else {
		run.Status = review.RunStatusSucceeded
	}
	delete(m.inflight, slug)
	m.mu.Unlock()

	metrics.ObserveRun(string(run.Status))
	if err != nil {
		m.logger.Error("refresh run failed",
			zap.String("run_id", runID),
			zap.String("slug", slug),
			zap.Error(err),
		)
	} else {
		m.logger.Info("refresh run completed",
			zap.String("run_id", runID),
			zap.String("slug", slug),
			zap.Int("pages_fetched", counters.PagesFetched),
			zap.Int("reviews_total", counters.ReviewsTotal),
		)
	}

	// The run context may already be expired (that can be why the run
	// failed), so the completion event gets its own deadline.
	pubCtx, pubCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer pubCancel()
	m.publishEvent(pubCtx, runID, slug, string(run.Status), counters)
}

// refresh is the body of one run. Nothing is committed to the store
// until collection succeeded in full; a terminated run leaves no
// partial state.
func (m *Manager) refresh(ctx context.Context, runID, slug string, mode review.FeedMode) (review.RunCounters, error) {
	var counters review.RunCounters

	prior, err := m.store.Load(ctx, slug)
	if err != nil && !errors.Is(err, review.ErrNotFound) {
		return counters, fmt.Errorf("load record: %w", err)
	}

	name := m.lookupName(ctx, slug)

	result, err := m.driver.Collect(ctx, slug, mode, prior.TotalReviews)
	counters.PagesFetched = result.PagesFetched
	counters.PagesSkipped = result.PagesSkipped
	counters.ReviewsExtracted = len(result.Reviews)
	if err != nil {
		return counters, err
	}

	m.archivePages(ctx, slug, runID, result.RawPages)

	record := review.Reconcile(prior, slug, name, result.Reviews, m.clock.Now())
	if err := m.store.Save(ctx, record); err != nil {
		return counters, fmt.Errorf("save record: %w", err)
	}
	counters.ReviewsTotal = record.TotalReviews
	metrics.ObserveMerged(slug, len(result.Reviews))
	return counters, nil
}

// lookupName refreshes the display name; a failed lookup degrades to a
// slug-derived title rather than failing the run.
func (m *Manager) lookupName(ctx context.Context, slug string) string {
	if m.directory == nil {
		return normalize.SlugTitle(slug)
	}
	name, err := m.directory.LookupName(ctx, slug)
	if err != nil {
		m.logger.Warn("name lookup failed, using slug-derived name",
			zap.String("slug", slug),
			zap.Error(err),
		)
		return normalize.SlugTitle(slug)
	}
	return normalize.CleanName(name)
}

// archivePages stores raw payloads best effort; archive failure never
// fails a run.
func (m *Manager) archivePages(ctx context.Context, slug, runID string, pages []RawPage) {
	if m.archive == nil {
		return
	}
	prefix := strings.Trim(m.cfg.ArchivePrefix, "/")
	for _, page := range pages {
		path := fmt.Sprintf("%s/%s/page-%d.html", slug, runID, page.Page)
		if prefix != "" {
			path = prefix + "/" + path
		}
		if _, err := m.archive.PutObject(ctx, path, m.cfg.ContentType, bytes.NewReader(page.Body)); err != nil {
			m.logger.Warn("archive write failed",
				zap.String("slug", slug),
				zap.String("path", path),
				zap.Error(err),
			)
		}
	}
}

func (m *Manager) publishEvent(ctx context.Context, runID, slug, status string, counters review.RunCounters) {
	if m.publisher == nil || m.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"run_id":        runID,
		"slug":          slug,
		"status":        status,
		"pages_fetched": counters.PagesFetched,
		"reviews_total": counters.ReviewsTotal,
		"timestamp":     m.clock.Now().Format(time.RFC3339),
	}
	if _, err := m.publisher.Publish(ctx, m.cfg.Topic, payload); err != nil {
		m.logger.Warn("run event publish failed",
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}
}
