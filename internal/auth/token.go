// Package auth owns the lifecycle of the OAuth bearer credential used by
// the link-aggregation upstream. A single shared token is refreshed over
// the network at most once at a time, regardless of concurrent demand.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	// expiryMargin is subtracted from the server-declared TTL so a token is
	// never handed out right at the edge of expiry.
	expiryMargin = 60 * time.Second

	// refreshBaseWait is the first exponential-backoff delay between
	// transient refresh failures.
	refreshBaseWait = 2 * time.Second

	// maxTokenCalls bounds the token-endpoint calls per refresh, counting
	// the initial attempt.
	maxTokenCalls = 3

	// contendedWait is how long a caller sleeps before re-checking the slot
	// while another caller holds the refresh lock.
	contendedWait = 200 * time.Millisecond

	requestTimeout = 30 * time.Second
)

// ErrCredentialsRejected marks a refresh rejected by the token endpoint.
// It is permanent: retrying the same grant cannot succeed.
var ErrCredentialsRejected = errors.New("credentials rejected by token endpoint")

// AccessToken is an immutable bearer credential with a precomputed expiry.
// The slot in TokenCache only ever swaps whole values.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

// Live reports whether the token is still safe to use at now.
func (t *AccessToken) Live(now time.Time) bool {
	return t != nil && now.Before(t.ExpiresAt)
}

// Config carries the resource-owner password-grant credentials.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
}

// TokenCache hands out a shared bearer token, refreshing it when missing or
// stale. The refresh is single-flight: the mutex guards the decision to
// call the network, while slot reads stay lock-free.
type TokenCache struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger

	current atomic.Pointer[AccessToken]
	refresh sync.Mutex

	backoffBase time.Duration
	now         func() time.Time
}

// NewTokenCache creates a cache with an empty slot; the first Token call
// triggers a refresh. A nil logger falls back to slog.Default().
func NewTokenCache(cfg Config, log *slog.Logger) *TokenCache {
	if log == nil {
		log = slog.Default()
	}
	return &TokenCache{
		cfg:         cfg,
		client:      &http.Client{Timeout: requestTimeout},
		log:         log,
		backoffBase: refreshBaseWait,
		now:         time.Now,
	}
}

// Token returns a live bearer token, refreshing it first if needed. Callers
// racing an in-flight refresh re-check the slot every 200ms until the
// context is done; pass a context with a deadline to bound the wait.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	for {
		if tok := c.current.Load(); tok.Live(c.now()) {
			return tok.Token, nil
		}

		if c.refresh.TryLock() {
			tok, err := c.refreshLocked(ctx)
			c.refresh.Unlock()
			if err != nil {
				return "", err
			}
			return tok.Token, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(contendedWait):
		}
	}
}

// refreshLocked re-checks the slot, then performs the network refresh with
// backoff and stores the result. The caller holds the refresh lock.
func (c *TokenCache) refreshLocked(ctx context.Context) (*AccessToken, error) {
	if tok := c.current.Load(); tok.Live(c.now()) {
		return tok, nil
	}

	var tok *AccessToken
	backoff := retry.WithMaxRetries(maxTokenCalls-1, retry.NewExponential(c.backoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		t, err := c.requestToken(ctx)
		if err != nil {
			if errors.Is(err, ErrCredentialsRejected) {
				return err
			}
			c.log.Warn("token refresh failed, will retry", "error", err)
			return retry.RetryableError(err)
		}
		tok = t
		return nil
	})
	if err != nil {
		c.log.Error("token refresh failed", "error", err)
		return nil, fmt.Errorf("refresh access token: %w", err)
	}

	c.current.Store(tok)
	c.log.Info("access token refreshed", "expires_at", tok.ExpiresAt)
	return tok, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

func (c *TokenCache) requestToken(ctx context.Context) (*AccessToken, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, fmt.Errorf("%w: status %d", ErrCredentialsRejected, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access_token in response", ErrCredentialsRejected)
	}

	return &AccessToken{
		Token:     tr.AccessToken,
		ExpiresAt: c.now().Add(time.Duration(tr.ExpiresIn)*time.Second - expiryMargin),
	}, nil
}
