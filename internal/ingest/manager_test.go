package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	archivemem "github.com/plugwatch/plugwatch/internal/archive/memory"
	pubmem "github.com/plugwatch/plugwatch/internal/publisher/memory"
	"github.com/plugwatch/plugwatch/internal/review"
	storemem "github.com/plugwatch/plugwatch/internal/store/memory"
)

type seqIDGen struct{ n int }

func (g *seqIDGen) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("run-%d", g.n), nil
}

type fakeDirectory struct {
	names map[string]string
	err   error
}

func (d *fakeDirectory) LookupName(_ context.Context, slug string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	name, ok := d.names[slug]
	if !ok {
		return "", review.ErrNotFound
	}
	return name, nil
}

// blockingTransport holds every Fetch until released, so a run can be
// kept in flight deliberately.
type blockingTransport struct {
	gate chan struct{}
	body []byte
}

func (t *blockingTransport) Fetch(ctx context.Context, _ string) (review.FetchResponse, error) {
	select {
	case <-t.gate:
	case <-ctx.Done():
		return review.FetchResponse{}, ctx.Err()
	}
	return review.FetchResponse{StatusCode: 200, Body: t.body}, nil
}

func waitForRun(t *testing.T, m *Manager, runID string) review.Run {
	t.Helper()
	var run review.Run
	require.Eventually(t, func() bool {
		var err error
		run, err = m.GetRun(runID)
		return err == nil && run.Status != review.RunStatusRunning
	}, 5*time.Second, 5*time.Millisecond)
	return run
}

func newManagerFixture(transport review.Transport, extractor review.Extractor, opts ManagerConfig) (*Manager, *storemem.PluginStore, *archivemem.BlobStore, *pubmem.Publisher) {
	store := storemem.NewPluginStore()
	archive := archivemem.New()
	publisher := pubmem.New()
	driver := NewDriver(transport, extractor, extractor,
		fixedClock{now: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		testURLs(), DriverConfig{MaxPages: 10, MinDelay: time.Millisecond}, nil)
	directory := &fakeDirectory{names: map[string]string{"akismet": "Akismet Anti-spam"}}
	m := NewManager(store, driver, directory, archive, publisher,
		fixedClock{now: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		&seqIDGen{}, opts, nil)
	return m, store, archive, publisher
}

func TestManager_SuccessfulRunCommits(t *testing.T) {
	t.Parallel()

	urls := testURLs()
	transport := &fakeTransport{bodies: map[string][]byte{
		urls.ListingPage("akismet", 1): []byte("page-1"),
	}}
	extractor := &scriptedExtractor{raws: map[string][]review.RawReview{
		"page-1": {rawNamed("alice"), rawNamed("bob")},
	}}
	m, store, archive, publisher := newManagerFixture(transport, extractor, ManagerConfig{Topic: "plugwatch-runs"})

	runID, err := m.StartRefresh("akismet", review.ModeListing)
	require.NoError(t, err)

	run := waitForRun(t, m, runID)
	assert.Equal(t, review.RunStatusSucceeded, run.Status)
	assert.Empty(t, run.ErrorText)
	assert.Equal(t, 1, run.Counters.PagesFetched)
	assert.Equal(t, 2, run.Counters.ReviewsExtracted)
	assert.Equal(t, 2, run.Counters.ReviewsTotal)
	require.NotNil(t, run.Finished)

	record, err := store.Load(context.Background(), "akismet")
	require.NoError(t, err)
	assert.Equal(t, "Akismet Anti-spam", record.Name)
	assert.Len(t, record.Reviews, 2)
	assert.Equal(t, 2, record.TotalReviews)

	body, ok := archive.Object(fmt.Sprintf("akismet/%s/page-1.html", runID))
	require.True(t, ok)
	assert.Equal(t, []byte("page-1"), body)

	messages := publisher.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "plugwatch-runs", messages[0].Topic)
	payload, ok := messages[0].Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, runID, payload["run_id"])
	assert.Equal(t, string(review.RunStatusSucceeded), payload["status"])
}

func TestManager_FailedRunCommitsNothing(t *testing.T) {
	t.Parallel()

	urls := testURLs()
	transport := &fakeTransport{errs: map[string]error{
		urls.ListingPage("akismet", 1): errors.New("all relays down"),
	}}
	m, store, _, _ := newManagerFixture(transport, &scriptedExtractor{}, ManagerConfig{})

	runID, err := m.StartRefresh("akismet", review.ModeListing)
	require.NoError(t, err)

	run := waitForRun(t, m, runID)
	assert.Equal(t, review.RunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorText, "all relays down")

	_, err = store.Load(context.Background(), "akismet")
	assert.ErrorIs(t, err, review.ErrNotFound)
}

func TestManager_SecondRunForSameSlugRejected(t *testing.T) {
	t.Parallel()

	transport := &blockingTransport{gate: make(chan struct{}), body: []byte("page-1")}
	extractor := &scriptedExtractor{raws: map[string][]review.RawReview{
		"page-1": {rawNamed("alice")},
	}}
	m, _, _, _ := newManagerFixture(transport, extractor, ManagerConfig{})

	first, err := m.StartRefresh("akismet", review.ModeListing)
	require.NoError(t, err)

	_, err = m.StartRefresh("akismet", review.ModeListing)
	assert.ErrorIs(t, err, review.ErrRunInFlight)

	// A different slug is not blocked by akismet's run.
	other, err := m.StartRefresh("jetpack", review.ModeListing)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	close(transport.gate)
	waitForRun(t, m, first)

	// Once the first run finished the slug is free again.
	_, err = m.StartRefresh("akismet", review.ModeListing)
	require.NoError(t, err)
}

func TestManager_UnknownModeRejected(t *testing.T) {
	t.Parallel()

	m, _, _, _ := newManagerFixture(&fakeTransport{}, &scriptedExtractor{}, ManagerConfig{})

	_, err := m.StartRefresh("akismet", review.FeedMode("atom"))
	assert.ErrorIs(t, err, review.ErrValidation)
}

func TestManager_ArchiveFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()

	urls := testURLs()
	transport := &fakeTransport{bodies: map[string][]byte{
		urls.ListingPage("akismet", 1): []byte("page-1"),
	}}
	extractor := &scriptedExtractor{raws: map[string][]review.RawReview{
		"page-1": {rawNamed("alice")},
	}}
	m, store, archive, _ := newManagerFixture(transport, extractor, ManagerConfig{})
	archive.FailWith(errors.New("bucket gone"))

	runID, err := m.StartRefresh("akismet", review.ModeListing)
	require.NoError(t, err)

	run := waitForRun(t, m, runID)
	assert.Equal(t, review.RunStatusSucceeded, run.Status)
	assert.Zero(t, archive.Len())

	record, err := store.Load(context.Background(), "akismet")
	require.NoError(t, err)
	assert.Len(t, record.Reviews, 1)
}

func TestManager_DirectoryFailureFallsBackToSlugName(t *testing.T) {
	t.Parallel()

	urls := testURLs()
	transport := &fakeTransport{bodies: map[string][]byte{
		urls.ListingPage("classic-editor", 1): []byte("page-1"),
	}}
	extractor := &scriptedExtractor{raws: map[string][]review.RawReview{
		"page-1": {rawNamed("alice")},
	}}
	store := storemem.NewPluginStore()
	driver := NewDriver(transport, extractor, extractor,
		fixedClock{now: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		testURLs(), DriverConfig{MaxPages: 10, MinDelay: time.Millisecond}, nil)
	m := NewManager(store, driver, &fakeDirectory{err: errors.New("api down")}, nil, nil,
		fixedClock{now: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		&seqIDGen{}, ManagerConfig{}, nil)

	runID, err := m.StartRefresh("classic-editor", review.ModeListing)
	require.NoError(t, err)
	waitForRun(t, m, runID)

	record, err := store.Load(context.Background(), "classic-editor")
	require.NoError(t, err)
	assert.Equal(t, "Classic Editor", record.Name)
}

// deadlinePublisher refuses publishes on an expired context, the way a
// real broker client would.
type deadlinePublisher struct {
	mu       sync.Mutex
	statuses []string
}

func (p *deadlinePublisher) Publish(ctx context.Context, _ string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := payload.(map[string]any); ok {
		if status, ok := m["status"].(string); ok {
			p.statuses = append(p.statuses, status)
		}
	}
	return "deadline-1", nil
}

func (p *deadlinePublisher) Statuses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.statuses))
	copy(out, p.statuses)
	return out
}

func TestManager_TimedOutRunStillPublishesEvent(t *testing.T) {
	t.Parallel()

	transport := &blockingTransport{gate: make(chan struct{})}
	defer close(transport.gate)
	publisher := &deadlinePublisher{}
	store := storemem.NewPluginStore()
	driver := NewDriver(transport, &scriptedExtractor{}, &scriptedExtractor{},
		fixedClock{now: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		testURLs(), DriverConfig{MaxPages: 10, MinDelay: time.Millisecond}, nil)
	m := NewManager(store, driver, nil, nil, publisher,
		fixedClock{now: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		&seqIDGen{}, ManagerConfig{RunTimeout: 10 * time.Millisecond, Topic: "plugwatch-runs"}, nil)

	runID, err := m.StartRefresh("akismet", review.ModeListing)
	require.NoError(t, err)

	run := waitForRun(t, m, runID)
	assert.Equal(t, review.RunStatusFailed, run.Status)

	require.Eventually(t, func() bool {
		return len(publisher.Statuses()) == 1
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{string(review.RunStatusFailed)}, publisher.Statuses())
}

func TestManager_GetRunUnknownID(t *testing.T) {
	t.Parallel()

	m, _, _, _ := newManagerFixture(&fakeTransport{}, &scriptedExtractor{}, ManagerConfig{})

	_, err := m.GetRun("no-such-run")
	assert.ErrorIs(t, err, review.ErrNotFound)
}
