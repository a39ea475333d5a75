// Package worker runs the batch jobs: email reply polling and lead
// enrichment. Jobs process one bounded batch per invocation and re-trigger
// themselves over HTTP while work remains, so a crashed run loses at most
// one batch.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/smallbiznis/reachway/internal/config"
	"go.uber.org/zap"
)

// SelfTrigger schedules the next batch of a job by calling back into the
// service's own job endpoint.
type SelfTrigger interface {
	Trigger(ctx context.Context, job string, body map[string]any) error
}

type httpTrigger struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zap.Logger
}

// noopTrigger disables chaining; each job then runs a single batch per
// external invocation.
type noopTrigger struct {
	log *zap.Logger
}

func NewSelfTrigger(cfg config.Config, log *zap.Logger) SelfTrigger {
	if cfg.Worker.SelfBaseURL == "" {
		return &noopTrigger{log: log.Named("worker.trigger")}
	}
	return &httpTrigger{
		baseURL: cfg.Worker.SelfBaseURL,
		token:   cfg.Worker.AuthToken,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log.Named("worker.trigger"),
	}
}

func (t *httpTrigger) Trigger(ctx context.Context, job string, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/internal/jobs/%s", t.baseURL, job)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("self trigger status %d", resp.StatusCode)
	}
	t.log.Debug("next batch scheduled", zap.String("job", job))
	return nil
}

func (t *noopTrigger) Trigger(ctx context.Context, job string, body map[string]any) error {
	t.log.Debug("self trigger disabled, chain stops", zap.String("job", job))
	return nil
}
