// Package mailbox talks to the mailbox provider's REST API for reply
// detection and keeps per-user OAuth tokens fresh.
package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/smallbiznis/reachway/internal/config"
	"go.uber.org/zap"
)

var ErrThreadNotFound = errors.New("thread_not_found")

// Client resolves sent messages to threads and inspects thread size. A thread
// with more than one message means the contact wrote back.
type Client interface {
	ThreadIDForMessage(ctx context.Context, accessToken, rfc822MessageID string) (string, error)
	ThreadMessageCount(ctx context.Context, accessToken, threadID string) (int, error)
}

type httpClient struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) Client {
	return &httpClient{
		baseURL: cfg.Mailbox.BaseURL,
		http:    &http.Client{Timeout: cfg.Mailbox.RequestTimeout},
		log:     log.Named("mailbox.client"),
	}
}

type messageListResponse struct {
	Messages []struct {
		ID       string `json:"id"`
		ThreadID string `json:"threadId"`
	} `json:"messages"`
}

type threadResponse struct {
	ID       string `json:"id"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// ThreadIDForMessage looks a sent message up by its RFC 822 Message-ID header.
func (c *httpClient) ThreadIDForMessage(ctx context.Context, accessToken, rfc822MessageID string) (string, error) {
	query := url.Values{"q": {fmt.Sprintf("rfc822msgid:%s", rfc822MessageID)}}
	endpoint := fmt.Sprintf("%s/users/me/messages?%s", c.baseURL, query.Encode())

	var out messageListResponse
	if err := c.get(ctx, accessToken, endpoint, &out); err != nil {
		return "", err
	}
	if len(out.Messages) == 0 {
		return "", ErrThreadNotFound
	}
	return out.Messages[0].ThreadID, nil
}

func (c *httpClient) ThreadMessageCount(ctx context.Context, accessToken, threadID string) (int, error) {
	endpoint := fmt.Sprintf("%s/users/me/threads/%s?format=minimal", c.baseURL, url.PathEscape(threadID))

	var out threadResponse
	if err := c.get(ctx, accessToken, endpoint, &out); err != nil {
		return 0, err
	}
	return len(out.Messages), nil
}

func (c *httpClient) get(ctx context.Context, accessToken, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrThreadNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mailbox api status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
