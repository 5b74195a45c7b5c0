package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
)

// IPAMClient talks to the IPAM system's lease API.
type IPAMClient struct {
	http *httpClient
}

func NewIPAMClient(baseURL, apiKey string, logger zerolog.Logger) *IPAMClient {
	return &IPAMClient{http: newHTTPClient(baseURL, apiKey, logger, "ipam")}
}

func (c *IPAMClient) Allocate(ctx context.Context, req AllocateRequest) (*LeaseSet, error) {
	var set LeaseSet
	if err := c.http.do(ctx, http.MethodPost, "/v1/leases", req, &set); err != nil {
		return nil, fmt.Errorf("allocate leases for %s: %w", req.OwnerID, err)
	}
	return &set, nil
}

func (c *IPAMClient) Release(ctx context.Context, leaseID string) error {
	path := "/v1/leases/" + url.PathEscape(leaseID)
	err := c.http.do(ctx, http.MethodDelete, path, nil, nil)
	if errors.Is(err, ErrRemoteNotFound) {
		// Already released, nothing left to do.
		return nil
	}
	if err != nil {
		return fmt.Errorf("release lease %s: %w", leaseID, err)
	}
	return nil
}
