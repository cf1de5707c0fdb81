package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/linecheck/syncproxy/internal/fingerprint"
	"github.com/linecheck/syncproxy/internal/store"
)

// ErrUnreachable is returned when neither cache nor network can serve a
// request that has no offline fallback.
var ErrUnreachable = errors.New("strategy: no cached entry and network unreachable")

// Cache result header, exposed so callers can see how a request was served.
const ServedByHeader = "X-Served-By"

// passThrough forwards the request untouched and never writes the store.
func (r *Router) passThrough(ctx context.Context, req *Request) (*Response, error) {
	return r.fetcher.Do(ctx, req)
}

// serveMutation forwards a mutation. Mutations are never cached; a
// connectivity failure against the data API is recorded in the offline
// action queue and answered with a synthetic offline response.
func (r *Router) serveMutation(ctx context.Context, req *Request) (*Response, error) {
	resp, err := r.fetcher.Do(ctx, req)
	if err == nil {
		return resp, nil
	}
	if !r.isDataAPI(req) || r.enqueue == nil {
		return nil, err
	}
	if qerr := r.enqueue(ctx, req); qerr != nil {
		r.log.Error().Err(qerr).Str("path", req.URL.Path).Msg("failed to queue offline mutation")
		return nil, err
	}
	r.log.Info().Str("method", req.Method).Str("path", req.URL.Path).Msg("mutation queued for sync")
	return r.offline(req, "Saved locally. Your change will sync when the connection returns."), nil
}

// networkFirst always tries the network, storing successes; on failure it
// falls back to the most recent stored entry, then to a synthetic offline
// response.
func (r *Router) networkFirst(ctx context.Context, req *Request) (*Response, error) {
	fp := fingerprint.For(req.Method, req.URL).Key()

	resp, err := r.fetcher.Do(ctx, req)
	if err == nil {
		r.storeResponse(fp, resp, "network-first")
		return resp, nil
	}

	if ent, ok := r.runtime.Match(fp); ok {
		r.log.Debug().Str("fingerprint", fp).Msg("network-first: served cached fallback")
		return entryResponse(ent, "cache-fallback"), nil
	}
	return r.offline(req, "You appear to be offline and no cached copy is available."), nil
}

// cacheFirst serves a stored entry if one exists (seeded static entries
// first), otherwise fetches, stores on success, and returns; total failure
// is a plain 503.
func (r *Router) cacheFirst(ctx context.Context, req *Request) (*Response, error) {
	fp := fingerprint.For(req.Method, req.URL).Key()

	if ent, ok := r.static.Match(fp); ok {
		return entryResponse(ent, "cache"), nil
	}
	if ent, ok := r.runtime.Match(fp); ok {
		return entryResponse(ent, "cache"), nil
	}

	resp, err := r.fetcher.Do(ctx, req)
	if err != nil {
		return plain503(), nil
	}
	r.storeResponse(fp, resp, "cache-first")
	return resp, nil
}

// staleWhileRevalidate serves any stored entry immediately while a
// concurrent network fetch refreshes the store for next time. With no
// stored entry the caller awaits the network; if that also fails the
// request rejects. This is the one path where failure propagates.
func (r *Router) staleWhileRevalidate(ctx context.Context, req *Request) (*Response, error) {
	fp := fingerprint.For(req.Method, req.URL).Key()

	ent, ok := r.runtime.Match(fp)
	if !ok {
		ent, ok = r.static.Match(fp)
	}
	if ok {
		r.revalidateAsync(req, fp)
		return entryResponse(ent, "cache-revalidating"), nil
	}

	resp, err := r.fetcher.Do(ctx, req)
	if err != nil {
		return nil, errors.Join(ErrUnreachable, err)
	}
	r.storeResponse(fp, resp, "stale-while-revalidate")
	return resp, nil
}

// revalidateAsync refreshes a fingerprint in the background. The fetch is
// deliberately detached from the caller's context; a result that arrives
// after the caller moved on is still worth storing.
func (r *Router) revalidateAsync(req *Request, fp string) {
	clone := &Request{
		Method: req.Method,
		URL:    req.URL,
		Header: req.Header.Clone(),
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		resp, err := r.fetcher.Do(ctx, clone)
		if err != nil {
			r.log.Debug().Str("fingerprint", fp).Err(err).Msg("background revalidation failed")
			return
		}
		r.storeResponse(fp, resp, "stale-while-revalidate")
	}()
}

// storeResponse writes a successful response into the runtime namespace.
// Non-2xx responses are never cached.
func (r *Router) storeResponse(fp string, resp *Response, tag string) {
	ent := store.Entry{
		Fingerprint: fp,
		Status:      resp.Status,
		Header:      resp.Header.Clone(),
		Body:        resp.Body,
		StoredAt:    time.Now().UTC(),
		Strategy:    tag,
	}
	if err := r.runtime.Put(ent); err != nil {
		if !errors.Is(err, store.ErrNotCacheable) {
			r.log.Warn().Str("fingerprint", fp).Err(err).Msg("cache write failed")
		}
	}
}

// offline synthesizes the typed offline error response: JSON when the
// caller accepts it, plain text otherwise. Always 503.
func (r *Router) offline(req *Request, message string) *Response {
	if req.Accepts("application/json") {
		body, _ := json.Marshal(map[string]string{
			"error":   "Offline",
			"message": message,
		})
		h := http.Header{}
		h.Set("Content-Type", "application/json")
		h.Set(ServedByHeader, "offline")
		return &Response{Status: http.StatusServiceUnavailable, Header: h, Body: body}
	}
	h := http.Header{}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set(ServedByHeader, "offline")
	return &Response{Status: http.StatusServiceUnavailable, Header: h, Body: []byte(message)}
}

func plain503() *Response {
	h := http.Header{}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set(ServedByHeader, "offline")
	return &Response{Status: http.StatusServiceUnavailable, Header: h, Body: []byte("service unavailable")}
}

func entryResponse(ent store.Entry, servedBy string) *Response {
	h := ent.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set(ServedByHeader, servedBy)
	return &Response{Status: ent.Status, Header: h, Body: ent.Body}
}
