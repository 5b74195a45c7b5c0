package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// httpClient is the shared JSON-over-HTTP transport for the collaborator
// clients. External systems here are slow and partially available, so
// transient failures are retried with backoff; the step handlers' own
// idempotence covers the at-least-once delivery this implies.
type httpClient struct {
	baseURL string
	apiKey  string
	client  *retryablehttp.Client
}

func newHTTPClient(baseURL, apiKey string, logger zerolog.Logger, name string) *httpClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 4
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 10 * time.Second
	rc.HTTPClient.Timeout = 30 * time.Second
	rc.Logger = &retryLogger{logger: logger.With().Str("client", name).Logger()}

	return &httpClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  rc,
	}
}

func (c *httpClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, ErrRemoteNotFound)
	}
	if resp.StatusCode == http.StatusConflict {
		return fmt.Errorf("%s %s: %w", method, path, ErrRemoteConflict)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// retryLogger adapts zerolog to retryablehttp's leveled logger.
type retryLogger struct {
	logger zerolog.Logger
}

func (l *retryLogger) Error(msg string, kv ...any) { l.logger.Error().Fields(kv).Msg(msg) }
func (l *retryLogger) Info(msg string, kv ...any)  { l.logger.Info().Fields(kv).Msg(msg) }
func (l *retryLogger) Debug(msg string, kv ...any) { l.logger.Debug().Fields(kv).Msg(msg) }
func (l *retryLogger) Warn(msg string, kv ...any)  { l.logger.Warn().Fields(kv).Msg(msg) }
