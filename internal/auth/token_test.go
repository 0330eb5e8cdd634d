package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestCache(t *testing.T, tokenURL string) *TokenCache {
	t.Helper()
	c := NewTokenCache(Config{
		TokenURL:     tokenURL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Username:     "user",
		Password:     "pass",
		UserAgent:    "feedfusion-test/1.0",
	}, nil)
	c.backoffBase = time.Millisecond
	return c
}

func tokenHandler(t *testing.T, calls *atomic.Int64, delay time.Duration) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if delay > 0 {
			time.Sleep(delay)
		}

		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("content-type = %q", ct)
		}
		wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("client-id:client-secret"))
		if got := r.Header.Get("Authorization"); got != wantAuth {
			t.Errorf("authorization = %q, want %q", got, wantAuth)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "password" {
			t.Errorf("grant_type = %q, want password", got)
		}
		if got := r.PostForm.Get("username"); got != "user" {
			t.Errorf("username = %q", got)
		}

		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"bearer","expires_in":3600,"scope":"*"}`, calls.Load())
	}
}

func TestToken_FastPathSkipsNetwork(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(tokenHandler(t, &calls, 0))
	defer srv.Close()

	c := newTestCache(t, srv.URL)
	c.current.Store(&AccessToken{Token: "cached", ExpiresAt: time.Now().Add(time.Hour)})

	got, err := c.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if got != "cached" {
		t.Errorf("token = %q, want cached", got)
	}
	if calls.Load() != 0 {
		t.Errorf("endpoint calls = %d, want 0", calls.Load())
	}
}

func TestToken_ExpiredTokenNeverServed(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(tokenHandler(t, &calls, 0))
	defer srv.Close()

	c := newTestCache(t, srv.URL)
	c.current.Store(&AccessToken{Token: "stale", ExpiresAt: time.Now().Add(-time.Second)})

	got, err := c.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if got == "stale" {
		t.Error("returned a stale token from the fast path")
	}
	if calls.Load() != 1 {
		t.Errorf("endpoint calls = %d, want 1", calls.Load())
	}
}

func TestToken_SingleFlightRefresh(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(tokenHandler(t, &calls, 100*time.Millisecond))
	defer srv.Close()

	c := newTestCache(t, srv.URL)

	const n = 20
	tokens := make([]string, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], errs[i] = c.Token(context.Background())
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("endpoint calls = %d, want 1", got)
	}
	for i := range n {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if tokens[i] != tokens[0] {
			t.Errorf("caller %d got %q, caller 0 got %q", i, tokens[i], tokens[0])
		}
	}
}

func TestToken_ExpiryMarginApplied(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(tokenHandler(t, &calls, 0))
	defer srv.Close()

	c := newTestCache(t, srv.URL)
	before := time.Now()

	if _, err := c.Token(context.Background()); err != nil {
		t.Fatalf("token: %v", err)
	}

	tok := c.current.Load()
	if tok == nil {
		t.Fatal("slot is empty after refresh")
	}
	want := before.Add(3600*time.Second - expiryMargin)
	if tok.ExpiresAt.Before(want.Add(-time.Second)) || tok.ExpiresAt.After(want.Add(2*time.Second)) {
		t.Errorf("expires_at = %v, want about %v", tok.ExpiresAt, want)
	}
}

func TestToken_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestCache(t, srv.URL)

	_, err := c.Token(context.Background())
	if !errors.Is(err, ErrCredentialsRejected) {
		t.Fatalf("err = %v, want ErrCredentialsRejected", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("endpoint calls = %d, want 1 (no retry on client error)", got)
	}
}

func TestToken_TransientFailureRetryBound(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "upstream unavailable", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestCache(t, srv.URL)

	_, err := c.Token(context.Background())
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if errors.Is(err, ErrCredentialsRejected) {
		t.Errorf("transient failure classified as credential rejection: %v", err)
	}
	if got := calls.Load(); got != maxTokenCalls {
		t.Errorf("endpoint calls = %d, want %d", got, maxTokenCalls)
	}
}

func TestToken_TransientThenSuccess(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "try again", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"access_token":"recovered","token_type":"bearer","expires_in":3600,"scope":"*"}`)
	}))
	defer srv.Close()

	c := newTestCache(t, srv.URL)

	got, err := c.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if got != "recovered" {
		t.Errorf("token = %q, want recovered", got)
	}
	if calls.Load() != 2 {
		t.Errorf("endpoint calls = %d, want 2", calls.Load())
	}
}

func TestToken_EmptyAccessTokenRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"access_token":"","token_type":"bearer","expires_in":3600,"scope":"*"}`)
	}))
	defer srv.Close()

	c := newTestCache(t, srv.URL)

	_, err := c.Token(context.Background())
	if !errors.Is(err, ErrCredentialsRejected) {
		t.Fatalf("err = %v, want ErrCredentialsRejected", err)
	}
}

func TestToken_ContendedWaitHonorsCancellation(t *testing.T) {
	c := newTestCache(t, "http://localhost:0")

	// Hold the refresh lock so the caller lands on the contended path.
	c.refresh.Lock()
	defer c.refresh.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Token(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancellation took %v, want prompt abort", elapsed)
	}
}
