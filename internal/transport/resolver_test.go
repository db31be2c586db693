package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugwatch/plugwatch/internal/review"
)

type scriptedFetcher struct {
	responses map[string]review.FetchResponse
	errs      map[string]error
	calls     []string
}

func (f *scriptedFetcher) Fetch(_ context.Context, req review.FetchRequest) (review.FetchResponse, error) {
	f.calls = append(f.calls, req.URL)
	if err, ok := f.errs[req.URL]; ok {
		return review.FetchResponse{}, err
	}
	resp, ok := f.responses[req.URL]
	if !ok {
		return review.FetchResponse{}, fmt.Errorf("unexpected url %s", req.URL)
	}
	return resp, nil
}

func TestRouteURL(t *testing.T) {
	t.Parallel()

	target := "https://wordpress.org/support/plugin/foo/reviews/"
	assert.Equal(t, target, RouteURL("", target))
	assert.Equal(t,
		"https://relay.example/get?url=https%3A%2F%2Fwordpress.org%2Fsupport%2Fplugin%2Ffoo%2Freviews%2F",
		RouteURL("https://relay.example/get?url=%s", target))
}

func TestResolver_FirstRouteWins(t *testing.T) {
	t.Parallel()

	target := "https://upstream.example/page"
	fetcher := &scriptedFetcher{
		responses: map[string]review.FetchResponse{
			RouteURL("https://relay-a.example/?u=%s", target): {StatusCode: http.StatusOK, Body: []byte("payload")},
		},
	}
	r := New(fetcher, []string{"https://relay-a.example/?u=%s", "https://relay-b.example/?u=%s"}, nil)

	resp, err := r.Fetch(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), resp.Body)
	assert.Len(t, fetcher.calls, 1, "later routes must not be tried after a success")
}

func TestResolver_FallsBackInOrder(t *testing.T) {
	t.Parallel()

	target := "https://upstream.example/page"
	routeA := RouteURL("https://relay-a.example/?u=%s", target)
	routeB := RouteURL("https://relay-b.example/?u=%s", target)
	fetcher := &scriptedFetcher{
		errs: map[string]error{routeA: errors.New("relay a down")},
		responses: map[string]review.FetchResponse{
			routeB: {StatusCode: http.StatusOK, Body: []byte("via b")},
		},
	}
	r := New(fetcher, []string{"https://relay-a.example/?u=%s", "https://relay-b.example/?u=%s"}, nil)

	resp, err := r.Fetch(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, []byte("via b"), resp.Body)
	assert.Equal(t, []string{routeA, routeB}, fetcher.calls)
}

func TestResolver_NonSuccessStatusFallsThrough(t *testing.T) {
	t.Parallel()

	target := "https://upstream.example/page"
	routeA := RouteURL("https://relay-a.example/?u=%s", target)
	fetcher := &scriptedFetcher{
		responses: map[string]review.FetchResponse{
			routeA: {StatusCode: http.StatusForbidden},
			target: {StatusCode: http.StatusOK, Body: []byte("direct")},
		},
	}
	r := New(fetcher, []string{"https://relay-a.example/?u=%s", ""}, nil)

	resp, err := r.Fetch(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, []byte("direct"), resp.Body)
}

func TestResolver_Exhausted(t *testing.T) {
	t.Parallel()

	target := "https://upstream.example/page"
	lastErr := errors.New("relay b timeout")
	fetcher := &scriptedFetcher{
		errs: map[string]error{
			RouteURL("https://relay-a.example/?u=%s", target): errors.New("relay a down"),
			RouteURL("https://relay-b.example/?u=%s", target): lastErr,
		},
	}
	r := New(fetcher, []string{"https://relay-a.example/?u=%s", "https://relay-b.example/?u=%s"}, nil)

	_, err := r.Fetch(context.Background(), target)
	require.Error(t, err)
	assert.ErrorIs(t, err, review.ErrTransportExhausted)
	assert.ErrorIs(t, err, lastErr, "the last underlying error rides along")
	assert.Len(t, fetcher.calls, 2, "each route is tried exactly once per call")
}
