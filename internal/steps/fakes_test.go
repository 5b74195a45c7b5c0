package steps

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edvin/provisioning/internal/clients"
	"github.com/edvin/provisioning/internal/model"
	"github.com/edvin/provisioning/internal/saga"
	"github.com/edvin/provisioning/internal/store"
)

// ---------- Fake collaborators ----------

type fakeIPAM struct {
	allocates   []clients.AllocateRequest
	releases    []string
	set         *clients.LeaseSet
	allocateErr error
	releaseErr  error
}

func (f *fakeIPAM) Allocate(ctx context.Context, req clients.AllocateRequest) (*clients.LeaseSet, error) {
	f.allocates = append(f.allocates, req)
	if f.allocateErr != nil {
		return nil, f.allocateErr
	}
	return f.set, nil
}

func (f *fakeIPAM) Release(ctx context.Context, leaseID string) error {
	f.releases = append(f.releases, leaseID)
	return f.releaseErr
}

type fakeAAA struct {
	creates   []clients.CreateAccountRequest
	deletes   []string
	ref       string
	createErr error
	deleteErr error
}

func (f *fakeAAA) CreateAccount(ctx context.Context, req clients.CreateAccountRequest) (string, error) {
	f.creates = append(f.creates, req)
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.ref, nil
}

func (f *fakeAAA) DeleteAccount(ctx context.Context, username string) error {
	f.deletes = append(f.deletes, username)
	return f.deleteErr
}

type fakePON struct {
	activates     []clients.ActivateDeviceRequest
	deactivates   []string
	ref           string
	activateErr   error
	deactivateErr error
}

func (f *fakePON) ActivateDevice(ctx context.Context, req clients.ActivateDeviceRequest) (string, error) {
	f.activates = append(f.activates, req)
	if f.activateErr != nil {
		return "", f.activateErr
	}
	return f.ref, nil
}

func (f *fakePON) DeactivateDevice(ctx context.Context, deviceRef string) error {
	f.deactivates = append(f.deactivates, deviceRef)
	return f.deactivateErr
}

type fakeCPE struct {
	configures   []clients.ConfigureDeviceRequest
	removes      []string
	ref          string
	configureErr error
	removeErr    error
}

func (f *fakeCPE) ConfigureDevice(ctx context.Context, req clients.ConfigureDeviceRequest) (string, error) {
	f.configures = append(f.configures, req)
	if f.configureErr != nil {
		return "", f.configureErr
	}
	return f.ref, nil
}

func (f *fakeCPE) RemoveDevice(ctx context.Context, configRef string) error {
	f.removes = append(f.removes, configRef)
	return f.removeErr
}

type fakeArchiver struct {
	keys     []string
	payloads []any
	err      error
}

func (f *fakeArchiver) Export(ctx context.Context, key string, payload any) error {
	f.keys = append(f.keys, key)
	f.payloads = append(f.payloads, payload)
	return f.err
}

// ---------- Shared fixtures ----------

func newServiceFixture(t *testing.T, st saga.Store) *model.ProvisionedService {
	t.Helper()
	now := time.Now().UTC()
	svc := &model.ProvisionedService{
		ID:           "svc_test01",
		TenantID:     "tenant-1",
		SubscriberID: "sub-1001",
		Status:       model.ServicePending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, st.CreateService(context.Background(), svc))
	return svc
}

func provisionInputFixture(serviceID string) model.InputData {
	return model.InputData{
		"subscriber_id": "sub-1001",
		"username":      "alice@isp",
		"ipv4_pool_id":  "pool-v4-resi",
		"onu_serial":    "ALCL:F0001234",
		"onu_port":      1,
		"vlan_id":       100,
		"cpe_mac":       "aa:bb:cc:dd:ee:ff",
		InputServiceID:  serviceID,
	}
}

func newStore() *store.MemoryStore {
	return store.NewMemoryStore()
}

func strPtr(s string) *string { return &s }
