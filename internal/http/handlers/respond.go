// Package handlers exposes the provider webhooks and the operator admin API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeTwiML always answers 200; providers retry and alarm on anything else.
func writeTwiML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// Runner executes follow-up work for a webhook.
type Runner func(ctx context.Context, fn func(ctx context.Context))

// BackgroundRunner runs follow-up work after the response is written and
// lets shutdown wait for it.
type BackgroundRunner struct {
	timeout time.Duration
	wg      sync.WaitGroup
}

// Background returns a runner whose work keeps the request's values but not
// its cancellation, and is bounded by timeout.
func Background(timeout time.Duration) *BackgroundRunner {
	return &BackgroundRunner{timeout: timeout}
}

// Run matches Runner.
func (b *BackgroundRunner) Run(ctx context.Context, fn func(ctx context.Context)) {
	detached := context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(detached, b.timeout)
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until every started job returns or ctx is done. Call it after
// the HTTP server stopped accepting requests.
func (b *BackgroundRunner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Inline runs fn on the request goroutine.
func Inline(ctx context.Context, fn func(ctx context.Context)) {
	fn(ctx)
}
