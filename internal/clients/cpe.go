package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
)

// CPEClient talks to the CPE manager that pushes device configuration.
type CPEClient struct {
	http *httpClient
}

func NewCPEClient(baseURL, apiKey string, logger zerolog.Logger) *CPEClient {
	return &CPEClient{http: newHTTPClient(baseURL, apiKey, logger, "cpe")}
}

func (c *CPEClient) ConfigureDevice(ctx context.Context, req ConfigureDeviceRequest) (string, error) {
	var resp struct {
		ConfigRef string `json:"config_ref"`
	}
	if err := c.http.do(ctx, http.MethodPost, "/v1/configs", req, &resp); err != nil {
		return "", fmt.Errorf("configure device %s: %w", req.MAC, err)
	}
	return resp.ConfigRef, nil
}

func (c *CPEClient) RemoveDevice(ctx context.Context, configRef string) error {
	path := "/v1/configs/" + url.PathEscape(configRef)
	err := c.http.do(ctx, http.MethodDelete, path, nil, nil)
	if errors.Is(err, ErrRemoteNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove device config %s: %w", configRef, err)
	}
	return nil
}
