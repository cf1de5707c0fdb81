package worker

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/linecheck/syncproxy/internal/strategy"
)

// Handler builds the worker's HTTP surface: control endpoints under
// /internal/ and a catch-all interception route for everything else.
func (w *Worker) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(w.logRequests)

	r.Route("/internal", func(r chi.Router) {
		r.Get("/healthz", w.handleHealthz)
		r.Get("/events", w.handleEvents)
		r.Post("/sync/{tag}", w.handleSyncTrigger)
		r.Post("/push", w.handlePush)

		if w.drafts != nil {
			r.Get("/drafts/{key}", w.handleDraftGet)
			r.Put("/drafts/{key}", w.handleDraftPut)
			r.Delete("/drafts/{key}", w.handleDraftDelete)
		}
		if w.names != nil {
			r.Get("/names/{restaurant}/{template}", w.handleNameList)
			r.Post("/names/{restaurant}/{template}", w.handleNameAdd)
		}
	})

	r.Handle("/*", http.HandlerFunc(w.handleIntercept))
	return r
}

func (w *Worker) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(rw, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		w.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (w *Worker) handleHealthz(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(rw, `{"status":"ok","clients":%d}`, w.hub.Clients())
}

// handleIntercept is the fetch-event entry point: it converts the incoming
// request into the engine's representation, lets the strategy router serve
// it, and relays the result.
func (w *Worker) handleIntercept(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(rw, "bad request", http.StatusBadRequest)
		return
	}

	req := &strategy.Request{
		Method: r.Method,
		URL:    w.targetURL(r),
		Header: r.Header.Clone(),
		Body:   body,
	}
	resp, err := w.handlers.HandleRequest(r.Context(), req)
	if err != nil {
		w.log.Warn().Str("url", req.URL.String()).Err(err).Msg("intercepted request failed")
		http.Error(rw, "bad gateway", http.StatusBadGateway)
		return
	}

	for k, vs := range resp.Header {
		for _, v := range vs {
			rw.Header().Add(k, v)
		}
	}
	rw.Header().Del("Content-Length")
	rw.WriteHeader(resp.Status)
	_, _ = rw.Write(resp.Body)
}

// targetURL resolves the intercepted request's real destination.
// Proxy-style requests carry an absolute URL; everything else is a
// same-origin path resolved against the application origin.
func (w *Worker) targetURL(r *http.Request) *url.URL {
	if r.URL.IsAbs() {
		return r.URL
	}
	u := *w.appOrigin
	u.Path = r.URL.Path
	u.RawQuery = r.URL.RawQuery
	return &u
}

// handleEvents is the client notification channel: each open application
// instance holds one SSE connection and receives every broadcast message.
func (w *Worker) handleEvents(rw http.ResponseWriter, r *http.Request) {
	flusher, ok := rw.(http.Flusher)
	if !ok {
		http.Error(rw, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "text/event-stream")
	rw.Header().Set("Cache-Control", "no-cache")
	rw.Header().Set("Connection", "keep-alive")
	rw.WriteHeader(http.StatusOK)
	fmt.Fprint(rw, ": connected\n\n")
	flusher.Flush()

	ch := w.hub.Subscribe()
	defer w.hub.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			fmt.Fprintf(rw, "data: %s\n\n", b)
			flusher.Flush()
		}
	}
}

func (w *Worker) handleSyncTrigger(rw http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	fn, ok := w.handlers.Triggers[tag]
	if !ok {
		http.Error(rw, "unknown trigger", http.StatusNotFound)
		return
	}
	if err := fn(r.Context()); err != nil {
		w.log.Warn().Str("trigger", tag).Err(err).Msg("manual trigger failed")
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(rw).Encode(map[string]string{"error": err.Error()})
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(map[string]string{"status": "ok"})
}

func (w *Worker) handlePush(rw http.ResponseWriter, r *http.Request) {
	var p PushPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(rw, "bad payload", http.StatusBadRequest)
		return
	}
	if err := w.push(r.Context(), p); err != nil {
		http.Error(rw, "push failed", http.StatusInternalServerError)
		return
	}
	rw.WriteHeader(http.StatusAccepted)
}
