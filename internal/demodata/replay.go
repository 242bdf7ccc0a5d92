package demodata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/okian/slarisk/internal/domain/model"
	"github.com/okian/slarisk/pkg/logger"
)

const (
	laneBuffer      = 64
	maxRetries      = 3
	retryBackoff    = 50 * time.Millisecond
	defaultTimeout  = 10 * time.Second
	statusAccepted  = http.StatusAccepted
	statusDuplicate = http.StatusOK
)

// ReplayStats counts the outcome of a replay.
type ReplayStats struct {
	Submitted int64 `json:"submitted"`
	Accepted  int64 `json:"accepted"`
	Duplicate int64 `json:"duplicate"`
	Failed    int64 `json:"failed"`
	Retried   int64 `json:"retried"`
}

type counters struct {
	submitted, accepted, duplicate, failed, retried atomic.Int64
}

func (c *counters) snapshot() ReplayStats {
	return ReplayStats{
		Submitted: c.submitted.Load(),
		Accepted:  c.accepted.Load(),
		Duplicate: c.duplicate.Load(),
		Failed:    c.failed.Load(),
		Retried:   c.retried.Load(),
	}
}

// Replayer posts events to a running service's POST /events endpoint.
type Replayer struct {
	client  *http.Client
	baseURL string
	workers int
	logger  logger.Logger
}

// NewReplayer creates a Replayer. A nil client gets a 10s timeout.
func NewReplayer(baseURL string, workers int, client *http.Client, opts ...Option) *Replayer {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if workers < 1 {
		workers = 1
	}
	return &Replayer{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		workers: workers,
		logger:  applyOptions(opts).logger,
	}
}

// Replay submits events concurrently. Events of one task go through the same
// worker, so they arrive in the order given. Only context cancellation aborts
// the run; rejected events are counted as failed.
func (p *Replayer) Replay(ctx context.Context, events []model.Event) (ReplayStats, error) {
	p.logger.Info(ctx, "replaying events",
		logger.Int("events", len(events)),
		logger.Int("workers", p.workers),
		logger.String("url", p.baseURL))

	var st counters
	lanes := make([]chan model.Event, p.workers)
	for i := range lanes {
		lanes[i] = make(chan model.Event, laneBuffer)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, lane := range lanes {
		g.Go(func() error {
			for ev := range lane {
				if err := p.post(gctx, ev, &st); err != nil {
					return err
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		defer func() {
			for _, lane := range lanes {
				close(lane)
			}
		}()
		for _, ev := range events {
			lane := lanes[xxhash.Sum64String(ev.TaskID)%uint64(len(lanes))]
			select {
			case lane <- ev:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	err := g.Wait()
	out := st.snapshot()
	p.logger.Info(ctx, "replay finished",
		logger.Int64("submitted", out.Submitted),
		logger.Int64("accepted", out.Accepted),
		logger.Int64("duplicate", out.Duplicate),
		logger.Int64("failed", out.Failed))
	if err != nil {
		return out, fmt.Errorf("replay: %w", err)
	}
	return out, nil
}

func (p *Replayer) post(ctx context.Context, ev model.Event, st *counters) error {
	body, err := json.Marshal(ev)
	if err != nil {
		st.failed.Add(1)
		return nil //nolint:nilerr // a bad event is counted, not fatal
	}
	st.submitted.Add(1)

	for attempt := 0; ; attempt++ {
		status, err := p.send(ctx, body)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			st.failed.Add(1)
			return nil
		}
		switch {
		case status == statusAccepted:
			st.accepted.Add(1)
			return nil
		case status == statusDuplicate:
			st.duplicate.Add(1)
			return nil
		case status == http.StatusTooManyRequests && attempt < maxRetries:
			st.retried.Add(1)
			select {
			case <-time.After(retryBackoff * time.Duration(attempt+1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		default:
			st.failed.Add(1)
			return nil
		}
	}
}

func (p *Replayer) send(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/events", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
