package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
)

// PONClient talks to the optical-network controller that activates ONUs.
type PONClient struct {
	http *httpClient
}

func NewPONClient(baseURL, apiKey string, logger zerolog.Logger) *PONClient {
	return &PONClient{http: newHTTPClient(baseURL, apiKey, logger, "pon")}
}

func (c *PONClient) ActivateDevice(ctx context.Context, req ActivateDeviceRequest) (string, error) {
	var resp struct {
		DeviceRef string `json:"device_ref"`
	}
	if err := c.http.do(ctx, http.MethodPost, "/v1/devices", req, &resp); err != nil {
		return "", fmt.Errorf("activate device %s: %w", req.Serial, err)
	}
	return resp.DeviceRef, nil
}

func (c *PONClient) DeactivateDevice(ctx context.Context, deviceRef string) error {
	path := "/v1/devices/" + url.PathEscape(deviceRef)
	err := c.http.do(ctx, http.MethodDelete, path, nil, nil)
	if errors.Is(err, ErrRemoteNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deactivate device %s: %w", deviceRef, err)
	}
	return nil
}
