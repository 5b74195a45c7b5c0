package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
)

// AAAClient talks to the subscriber-authentication system.
type AAAClient struct {
	http *httpClient
}

func NewAAAClient(baseURL, apiKey string, logger zerolog.Logger) *AAAClient {
	return &AAAClient{http: newHTTPClient(baseURL, apiKey, logger, "aaa")}
}

func (c *AAAClient) CreateAccount(ctx context.Context, req CreateAccountRequest) (string, error) {
	var resp struct {
		AccountRef string `json:"account_ref"`
	}
	if err := c.http.do(ctx, http.MethodPost, "/v1/accounts", req, &resp); err != nil {
		return "", fmt.Errorf("create account %s: %w", req.Username, err)
	}
	return resp.AccountRef, nil
}

func (c *AAAClient) DeleteAccount(ctx context.Context, username string) error {
	path := "/v1/accounts/" + url.PathEscape(username)
	err := c.http.do(ctx, http.MethodDelete, path, nil, nil)
	if errors.Is(err, ErrRemoteNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete account %s: %w", username, err)
	}
	return nil
}
