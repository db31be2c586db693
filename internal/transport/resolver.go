// Package transport resolves a logical resource URL through an ordered
// chain of proxy routes. The upstream grants no direct crawl access, so
// every fetch rides a third-party relay; trying relays in order keeps
// any single relay from being a point of failure, and reordering them
// is a configuration change only.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/plugwatch/plugwatch/internal/metrics"
	"github.com/plugwatch/plugwatch/internal/review"
)

// Resolver tries each route once per call and returns the first
// success.
type Resolver struct {
	fetcher review.Fetcher
	routes  []string
	logger  *zap.Logger
}

// New builds a Resolver over the given route templates. A template
// rewrites the percent-encoded target URL into its sole %s slot; the
// empty template means "fetch the target directly".
func New(fetcher review.Fetcher, routes []string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(routes) == 0 {
		routes = []string{""}
	}
	return &Resolver{
		fetcher: fetcher,
		routes:  routes,
		logger:  logger,
	}
}

// Fetch attempts each route in order and returns the first response
// with a success status. When every route fails it returns an error
// wrapping review.ErrTransportExhausted and the last underlying error.
func (r *Resolver) Fetch(ctx context.Context, target string) (review.FetchResponse, error) {
	var lastErr error
	for i, route := range r.routes {
		resp, err := r.fetcher.Fetch(ctx, review.FetchRequest{URL: RouteURL(route, target)})
		if err != nil {
			lastErr = err
			metrics.ObserveProxyAttempt(i, "error")
			r.logger.Warn("proxy route failed",
				zap.Int("route", i),
				zap.String("target", target),
				zap.Error(err),
			)
			continue
		}
		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			metrics.ObserveProxyAttempt(i, "bad_status")
			r.logger.Warn("proxy route returned non-success",
				zap.Int("route", i),
				zap.String("target", target),
				zap.Int("status", resp.StatusCode),
			)
			continue
		}
		metrics.ObserveProxyAttempt(i, "ok")
		return resp, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no routes configured")
	}
	return review.FetchResponse{}, fmt.Errorf("fetch %s: %w: last error: %w", target, review.ErrTransportExhausted, lastErr)
}

// RouteURL applies a proxy template to a target URL. The target is
// percent-encoded before substitution.
func RouteURL(template, target string) string {
	if strings.TrimSpace(template) == "" {
		return target
	}
	return fmt.Sprintf(template, url.QueryEscape(target))
}
