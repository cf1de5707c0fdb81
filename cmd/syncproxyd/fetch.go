package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/linecheck/syncproxy/internal/strategy"
)

// Hop-by-hop headers are stripped before forwarding.
var hopByHop = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Proxy-Connection":    {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

func newOutboundRequest(ctx context.Context, req *strategy.Request) (*http.Request, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		if _, skip := hopByHop[http.CanonicalHeaderKey(k)]; skip {
			continue
		}
		if strings.EqualFold(k, "Host") {
			continue
		}
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	return hreq, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	return io.ReadAll(resp.Body)
}
