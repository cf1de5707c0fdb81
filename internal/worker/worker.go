// Package worker is the thin platform adapter around the engine: it owns
// the lifecycle (install, activate) and translates platform events —
// intercepted requests, reconnect triggers, push messages — into calls on
// registered handlers. Decision logic stays in the other packages so it
// tests without this adapter.
package worker

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/linecheck/syncproxy/internal/draft"
	"github.com/linecheck/syncproxy/internal/names"
	"github.com/linecheck/syncproxy/internal/strategy"
	"github.com/linecheck/syncproxy/internal/syncer"
)

// PushPayload is an inbound push message rendered as a notification.
// Clicking it focuses an existing matching window or opens a new one at
// URL; that part happens client-side, the worker only fans out.
type PushPayload struct {
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	URL     string   `json:"url"`
	Actions []string `json:"actions,omitempty"`
}

// Handlers are the engine entry points the adapter dispatches to, one per
// platform event kind.
type Handlers struct {
	// Install seeds the static namespace. Failures abort startup only if
	// Install itself returns an error; partial seeding does not.
	Install func(ctx context.Context) error
	// Activate garbage-collects stale namespaces and takes control of
	// all clients immediately.
	Activate func(ctx context.Context) error
	// HandleRequest serves one intercepted request.
	HandleRequest func(ctx context.Context, req *strategy.Request) (*strategy.Response, error)
	// Triggers are named reconnect triggers, e.g. "sync-submissions".
	Triggers map[string]func(ctx context.Context) error
	// HandlePush handles an inbound push payload. Optional; the default
	// broadcasts it to connected clients.
	HandlePush func(ctx context.Context, p PushPayload) error
}

// Worker binds the handlers to the HTTP surface.
type Worker struct {
	handlers  Handlers
	hub       *syncer.Hub
	appOrigin *url.URL
	log       zerolog.Logger

	drafts *draft.Store
	names  *names.Store
}

// Option configures optional worker collaborators.
type Option func(*Worker)

// WithDraftStore exposes draft snapshot persistence to clients under
// /internal/drafts/.
func WithDraftStore(s *draft.Store) Option {
	return func(w *Worker) { w.drafts = s }
}

// WithNameStore exposes the name suggestion sets under /internal/names/.
func WithNameStore(s *names.Store) Option {
	return func(w *Worker) { w.names = s }
}

// New builds the adapter. appOrigin resolves relative intercepted paths.
func New(appOrigin string, h Handlers, hub *syncer.Hub, log zerolog.Logger, opts ...Option) (*Worker, error) {
	origin, err := url.Parse(appOrigin)
	if err != nil || origin.Host == "" {
		return nil, fmt.Errorf("invalid app origin %q", appOrigin)
	}
	w := &Worker{
		handlers:  h,
		hub:       hub,
		appOrigin: origin,
		log:       log.With().Str("component", "worker").Logger(),
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Startup runs install then activate. The new worker takes control
// immediately; nothing waits for existing clients to close.
func (w *Worker) Startup(ctx context.Context) error {
	if w.handlers.Install != nil {
		if err := w.handlers.Install(ctx); err != nil {
			return fmt.Errorf("install: %w", err)
		}
	}
	if w.handlers.Activate != nil {
		if err := w.handlers.Activate(ctx); err != nil {
			return fmt.Errorf("activate: %w", err)
		}
	}
	w.log.Info().Msg("worker active")
	return nil
}

func (w *Worker) push(ctx context.Context, p PushPayload) error {
	if w.handlers.HandlePush != nil {
		return w.handlers.HandlePush(ctx, p)
	}
	w.hub.Broadcast(syncer.Message{
		Type:      syncer.TypePush,
		Timestamp: time.Now().UTC(),
		Title:     p.Title,
		Body:      p.Body,
		URL:       p.URL,
		Actions:   p.Actions,
	})
	return nil
}
