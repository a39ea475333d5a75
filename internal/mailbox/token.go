package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/reachway/internal/clock"
	"github.com/smallbiznis/reachway/internal/config"
	"github.com/smallbiznis/reachway/internal/mailbox/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// expirySlack refreshes tokens slightly before they lapse so an in-flight
// request never carries a token that dies mid-call.
const expirySlack = time.Minute

// TokenSource yields a live access token for one user's mailbox, refreshing
// through the OAuth endpoint when the stored one has expired.
type TokenSource interface {
	AccessToken(ctx context.Context, userID snowflake.ID) (string, error)
}

type tokenSource struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	http         *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
}

func NewTokenSource(db *gorm.DB, log *zap.Logger, clk clock.Clock, cfg config.Config) TokenSource {
	return &tokenSource{
		db:           db,
		log:          log.Named("mailbox.token"),
		clock:        clk,
		http:         &http.Client{Timeout: cfg.Mailbox.RequestTimeout},
		tokenURL:     cfg.Mailbox.TokenURL,
		clientID:     cfg.Mailbox.ClientID,
		clientSecret: cfg.Mailbox.ClientSecret,
	}
}

func (s *tokenSource) AccessToken(ctx context.Context, userID snowflake.ID) (string, error) {
	var cred domain.MailboxCredential
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", domain.ErrNoCredential
	}
	if err != nil {
		return "", err
	}

	if cred.TokenExpiresAt.After(s.clock.Now().Add(expirySlack)) {
		return cred.AccessToken, nil
	}
	return s.refresh(ctx, &cred)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (s *tokenSource) refresh(ctx context.Context, cred *domain.MailboxCredential) (string, error) {
	form := url.Values{
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
		"refresh_token": {cred.RefreshToken},
		"grant_type":    {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token refresh status %d", resp.StatusCode)
	}
	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", errors.New("token refresh returned empty access_token")
	}

	expiresAt := s.clock.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	if err := s.db.WithContext(ctx).
		Model(&domain.MailboxCredential{}).
		Where("id = ?", cred.ID).
		Updates(map[string]any{
			"access_token":     out.AccessToken,
			"token_expires_at": expiresAt,
			"updated_at":       s.clock.Now(),
		}).Error; err != nil {
		return "", err
	}

	s.log.Debug("mailbox token refreshed", zap.String("user_id", cred.UserID.String()))
	return out.AccessToken, nil
}
