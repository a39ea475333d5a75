// Package ai wraps the completion provider used for lead enrichment.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/smallbiznis/reachway/internal/config"
	leaddomain "github.com/smallbiznis/reachway/internal/lead/domain"
	"go.uber.org/zap"
)

// Generator produces enrichment notes for one lead. The provider is an
// opaque external service; callers only see the resulting text.
type Generator interface {
	EnrichLead(ctx context.Context, lead leaddomain.Lead) (string, error)
}

// NoOpGenerator is used when no provider is configured.
type NoOpGenerator struct{}

func (NoOpGenerator) EnrichLead(ctx context.Context, lead leaddomain.Lead) (string, error) {
	return "", errors.New("ai provider not configured")
}

type httpGenerator struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	log     *zap.Logger
}

func NewFromConfig(cfg config.Config, log *zap.Logger) Generator {
	if cfg.AI.BaseURL == "" || cfg.AI.APIKey == "" {
		log.Named("providers.ai").Info("ai provider not configured, enrichment disabled")
		return NoOpGenerator{}
	}
	return &httpGenerator{
		baseURL: cfg.AI.BaseURL,
		apiKey:  cfg.AI.APIKey,
		model:   cfg.AI.Model,
		http:    &http.Client{Timeout: cfg.AI.RequestTimeout},
		log:     log.Named("providers.ai"),
	}
}

type completionRequest struct {
	Model    string              `json:"model"`
	Messages []completionMessage `json:"messages"`
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionResponse struct {
	Choices []struct {
		Message completionMessage `json:"message"`
	} `json:"choices"`
}

func (g *httpGenerator) EnrichLead(ctx context.Context, lead leaddomain.Lead) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize what a sales rep should know before contacting this lead.\nName: %s\nCompany: %s\nPosition: %s",
		lead.Name, lead.Company, lead.Position,
	)
	body, err := json.Marshal(completionRequest{
		Model: g.model,
		Messages: []completionMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ai provider status %d", resp.StatusCode)
	}
	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", errors.New("ai provider returned no content")
	}
	return out.Choices[0].Message.Content, nil
}
