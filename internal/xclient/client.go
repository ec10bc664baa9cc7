package xclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/failsafehttp"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/time/rate"

	"threadpromo/internal/config"
	"threadpromo/internal/metrics"
)

// Client posts to X API v2 with OAuth 1.0a user-context credentials.
type Client struct {
	baseURL     string
	creds       config.CredentialsConfig
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
	nowFn       func() time.Time
	nonceFn     func() string
}

// StatusError is a non-retryable API response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string { return fmt.Sprintf("x api status %d: %s", e.Code, e.Body) }

func New(creds config.CredentialsConfig) *Client {
	return &Client{
		baseURL:     "https://api.twitter.com/2",
		creds:       creds,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		limiter:     newDefaultLimiter(),
		maxAttempts: getEnvInt("X_API_MAX_ATTEMPTS", 4),
		baseBackoff: time.Duration(getEnvInt("X_API_BASE_BACKOFF_MS", 500)) * time.Millisecond,
		nowFn:       time.Now,
		nonceFn:     func() string { return strconv.FormatUint(rand.Uint64(), 36) },
	}
}

// Ready reports whether all four credentials are present.
func (c *Client) Ready() error {
	if c.creds.ConsumerKey == "" || c.creds.ConsumerSecret == "" || c.creds.AccessToken == "" || c.creds.AccessSecret == "" {
		return errors.New("x credentials missing: set X_CONSUMER_KEY, X_CONSUMER_SECRET, X_ACCESS_TOKEN, X_ACCESS_SECRET")
	}
	return nil
}

// CreatePost publishes text and returns the new post id. Only 201 counts as success.
// Every attempt waits on the limiter and is signed afresh, so retries carry a new nonce.
func (c *Client) CreatePost(ctx context.Context, text string) (string, error) {
	if err := c.Ready(); err != nil { return "", err }
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil { return "", err }
	resp, err := failsafe.With[*http.Response](c.retryPolicy("create_post")).WithContext(ctx).Get(func() (*http.Response, error) {
		if err := c.limiter.Wait(ctx); err != nil { return nil, err }
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tweets", bytes.NewReader(body))
		if err != nil { return nil, err }
		req.Header.Set("Content-Type", "application/json")
		c.sign(req, nil)
		return c.httpClient.Do(req)
	})
	if err != nil { return "", fmt.Errorf("create post: %w", err) }
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &StatusError{Code: resp.StatusCode, Body: string(b)}
	}
	var raw struct {
		Data struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil { return "", fmt.Errorf("decode create post: %w", err) }
	return raw.Data.ID, nil
}

// retryPolicy retries transport errors, 429 and 5xx with exponential backoff and jitter,
// waiting for Retry-After when the server sends one. The last response is returned once
// attempts run out so the caller can report its status.
func (c *Client) retryPolicy(endpoint string) retrypolicy.RetryPolicy[*http.Response] {
	attempts := c.maxAttempts
	if attempts < 1 { attempts = 1 }
	b := failsafehttp.NewRetryPolicyBuilder().
		WithMaxRetries(attempts-1).
		AbortOnErrors(context.Canceled, context.DeadlineExceeded).
		ReturnLastFailure().
		OnRetryScheduled(func(e failsafe.ExecutionScheduledEvent[*http.Response]) {
			// the failed response is discarded
			if resp := e.LastResult(); resp != nil { _ = resp.Body.Close() }
		}).
		OnRetry(func(failsafe.ExecutionEvent[*http.Response]) { metrics.IncAPIRetry(endpoint) })
	if c.baseBackoff > 0 {
		b = b.WithBackoff(c.baseBackoff, 32*c.baseBackoff).WithJitterFactor(0.2)
	}
	return b.Build()
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" { return def }
	if i, err := strconv.Atoi(v); err == nil && i > 0 { return i }
	return def
}
