// Package syncer replays the offline action queue once connectivity
// returns and tells every open application instance when it has.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/linecheck/syncproxy/internal/queue"
)

// Orchestrator drains the offline action queue against the sync endpoint.
type Orchestrator struct {
	queue    *queue.Queue
	endpoint string
	client   *http.Client
	hub      *Hub
	log      zerolog.Logger

	// gate serializes replay passes; a reconnect trigger firing during
	// a pass must not interleave with it.
	gate chan struct{}
}

func NewOrchestrator(q *queue.Queue, endpoint string, client *http.Client, hub *Hub, log zerolog.Logger) *Orchestrator {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	o := &Orchestrator{
		queue:    q,
		endpoint: endpoint,
		client:   client,
		hub:      hub,
		log:      log.With().Str("component", "syncer").Logger(),
		gate:     make(chan struct{}, 1),
	}
	o.gate <- struct{}{}
	return o
}

// Replay runs one reconciliation pass: oldest pending action first, one in
// flight at a time. A successful replay commits (removes) the action and
// the pass continues; a failure leaves the action pending and halts the
// pass so later actions never jump ahead of a stuck one. After a pass with
// at least one commit, SYNC_SUCCESS is broadcast to every open client.
func (o *Orchestrator) Replay(ctx context.Context) error {
	select {
	case <-o.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { o.gate <- struct{}{} }()

	committed := 0
	var haltErr error

	for {
		act, receipt, err := o.queue.Oldest()
		if errors.Is(err, queue.ErrEmpty) {
			break
		}
		if err != nil {
			haltErr = fmt.Errorf("read queue: %w", err)
			break
		}

		if err := o.replayOne(ctx, act); err != nil {
			if nerr := o.queue.Nack(receipt, act); nerr != nil {
				o.log.Error().Err(nerr).Str("action", act.ID).Msg("failed to keep action pending")
			}
			o.log.Warn().
				Err(err).
				Str("action", act.ID).
				Str("entity", act.Entity).
				Int("attempts", act.Attempts+1).
				Msg("replay failed, pass halted")
			haltErr = err
			break
		}

		if err := o.queue.Ack(receipt); err != nil {
			haltErr = fmt.Errorf("ack action %s: %w", act.ID, err)
			break
		}
		committed++
		o.log.Info().Str("action", act.ID).Str("entity", act.Entity).Str("op", string(act.Op)).Msg("action committed")
	}

	if committed > 0 {
		o.hub.Broadcast(Message{Type: TypeSyncSuccess, Timestamp: time.Now().UTC()})
		o.log.Info().Int("committed", committed).Msg("sync pass complete")
	}
	return haltErr
}

// replayOne posts a single action to the fixed sync endpoint.
func (o *Orchestrator) replayOne(ctx context.Context, act queue.Action) error {
	body, err := json.Marshal(act)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("post sync endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("sync endpoint status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

// Pending reports the number of queued actions awaiting replay.
func (o *Orchestrator) Pending() (int, error) {
	return o.queue.Len()
}
