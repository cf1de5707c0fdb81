// Package strategy decides how each intercepted request is served: live
// network, cached, background-refreshed, or passed through untouched.
//
// Classification is an explicit, ordered rule table evaluated top to
// bottom, so the precedence (origin check, deny-list, method check, then
// strategy selection) is auditable rather than buried in conditionals.
package strategy

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/linecheck/syncproxy/internal/store"
)

// Request is the engine's view of an intercepted request.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// Accepts reports whether the request's Accept header admits the given
// content type.
func (r *Request) Accepts(contentType string) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, contentType) || strings.Contains(accept, "*/*")
}

// Response is what the engine hands back to the platform adapter.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Fetcher performs the actual network request.
type Fetcher interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// FetchFunc adapts a function to the Fetcher interface.
type FetchFunc func(ctx context.Context, req *Request) (*Response, error)

func (f FetchFunc) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// ServeFunc is one serving strategy.
type ServeFunc func(ctx context.Context, req *Request) (*Response, error)

// Rule pairs a predicate with the strategy serving matching requests.
type Rule struct {
	Name  string
	Match func(req *Request) bool
	Serve ServeFunc
}

// Config classifies requests for the router.
type Config struct {
	// AppHost is the application's own origin host (host[:port]).
	AppHost string
	// AllowHosts are cross-origin hosts the engine may intercept
	// (the backing data API). Matched by exact host or dot-suffix.
	AllowHosts []string
	// DenyHosts are never intercepted (analytics, tracking, third-party
	// APIs). Matched by substring against the hostname.
	DenyHosts []string
	// APIPrefix is the data-API path prefix served Network-First.
	APIPrefix string
	// StaticExts are path extensions served Cache-First.
	StaticExts []string
}

// Router dispatches intercepted requests through the rule table.
type Router struct {
	cfg     Config
	fetcher Fetcher
	runtime *store.Namespace
	static  *store.Namespace
	enqueue func(ctx context.Context, req *Request) error
	log     zerolog.Logger

	rules []Rule

	// wg tracks in-flight background revalidations so shutdown can
	// drain them.
	wg sync.WaitGroup
}

// Options carries the router's collaborators.
type Options struct {
	Fetcher Fetcher
	Runtime *store.Namespace
	Static  *store.Namespace
	// Enqueue records a data-API mutation that failed with a network
	// error. Optional; without it such failures surface as offline 503s
	// with nothing queued.
	Enqueue func(ctx context.Context, req *Request) error
	Log     zerolog.Logger
}

// New builds a router with the classification order fixed by the table
// below.
func New(cfg Config, opts Options) *Router {
	r := &Router{
		cfg:     cfg,
		fetcher: opts.Fetcher,
		runtime: opts.Runtime,
		static:  opts.Static,
		enqueue: opts.Enqueue,
		log:     opts.Log.With().Str("component", "router").Logger(),
	}
	r.rules = []Rule{
		{Name: "cross-origin", Match: r.isForeign, Serve: r.passThrough},
		{Name: "deny-list", Match: r.isDenied, Serve: r.passThrough},
		{Name: "mutation", Match: isMutation, Serve: r.serveMutation},
		{Name: "network-first", Match: r.isDataAPI, Serve: r.networkFirst},
		{Name: "cache-first", Match: r.isStaticAsset, Serve: r.cacheFirst},
		{Name: "stale-while-revalidate", Match: matchAny, Serve: r.staleWhileRevalidate},
	}
	return r
}

// Rules exposes the table for inspection.
func (r *Router) Rules() []Rule { return r.rules }

// Handle serves one intercepted request.
func (r *Router) Handle(ctx context.Context, req *Request) (*Response, error) {
	for _, rule := range r.rules {
		if rule.Match(req) {
			return rule.Serve(ctx, req)
		}
	}
	// matchAny makes the table total; this is unreachable.
	return r.passThrough(ctx, req)
}

// Drain blocks until in-flight background revalidations finish.
func (r *Router) Drain() {
	r.wg.Wait()
}

func (r *Router) isForeign(req *Request) bool {
	host := strings.ToLower(req.URL.Host)
	if host == "" || host == strings.ToLower(r.cfg.AppHost) {
		return false
	}
	for _, allowed := range r.cfg.AllowHosts {
		if hostMatches(host, allowed) {
			return false
		}
	}
	return true
}

func (r *Router) isDenied(req *Request) bool {
	name := strings.ToLower(req.URL.Hostname())
	for _, denied := range r.cfg.DenyHosts {
		if strings.Contains(name, strings.ToLower(denied)) {
			return true
		}
	}
	return false
}

func isMutation(req *Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead:
		return false
	}
	return true
}

func (r *Router) isDataAPI(req *Request) bool {
	return strings.HasPrefix(req.URL.Path, r.cfg.APIPrefix)
}

func (r *Router) isStaticAsset(req *Request) bool {
	path := strings.ToLower(req.URL.Path)
	for _, ext := range r.cfg.StaticExts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func matchAny(*Request) bool { return true }

func hostMatches(host, pattern string) bool {
	pattern = strings.ToLower(pattern)
	if host == pattern {
		return true
	}
	return strings.HasSuffix(host, "."+pattern)
}
