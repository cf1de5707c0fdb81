package store

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/linecheck/syncproxy/internal/fingerprint"
)

const seedParallelism = 4

// Seed pre-populates the namespace with a fixed set of core resources at
// install time. Individual failures are logged and swallowed; a partially
// seeded static cache is preferable to a failed install. Returns the number
// of entries stored.
func Seed(ctx context.Context, ns *Namespace, client *http.Client, urls []string, log zerolog.Logger) int {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(seedParallelism)

	results := make(chan string, len(urls))
	for _, raw := range urls {
		raw := raw
		g.Go(func() error {
			if seedOne(ctx, ns, client, raw, log) {
				results <- raw
			}
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	seeded := 0
	for range results {
		seeded++
	}
	log.Info().Int("seeded", seeded).Int("requested", len(urls)).Msg("static namespace seeded")
	return seeded
}

func seedOne(ctx context.Context, ns *Namespace, client *http.Client, raw string, log zerolog.Logger) bool {
	fp, err := fingerprint.Parse(http.MethodGet, raw)
	if err != nil {
		log.Warn().Str("url", raw).Err(err).Msg("seed skipped: bad url")
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		log.Warn().Str("url", raw).Err(err).Msg("seed skipped")
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Warn().Str("url", raw).Err(err).Msg("seed fetch failed")
		return false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warn().Str("url", raw).Err(err).Msg("seed read failed")
		return false
	}

	ent := Entry{
		Fingerprint: fp.Key(),
		Status:      resp.StatusCode,
		Header:      resp.Header.Clone(),
		Body:        body,
		StoredAt:    time.Now().UTC(),
		Strategy:    "precache",
	}
	if err := ns.Put(ent); err != nil {
		log.Warn().Str("url", raw).Int("status", resp.StatusCode).Err(err).Msg("seed not stored")
		return false
	}
	return true
}
