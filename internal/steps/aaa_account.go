package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/edvin/provisioning/internal/clients"
	"github.com/edvin/provisioning/internal/model"
	"github.com/edvin/provisioning/internal/platform"
	"github.com/edvin/provisioning/internal/saga"
)

// CreateAAAAccountStep registers the subscriber's credentials with the
// AAA system and attaches whichever addresses earlier steps put in the
// context. A missing credential is generated; only its bcrypt hash is
// kept on the service record.
type CreateAAAAccountStep struct {
	aaa   clients.AAA
	store saga.Store
}

func NewCreateAAAAccountStep(aaa clients.AAA, store saga.Store) *CreateAAAAccountStep {
	return &CreateAAAAccountStep{aaa: aaa, store: store}
}

func (s *CreateAAAAccountStep) Execute(ctx context.Context, input model.InputData, wfctx model.Context) (*saga.StepResult, error) {
	in, err := model.DecodeProvisionInput(input)
	if err != nil {
		return nil, err
	}
	serviceID, _ := input[InputServiceID].(string)
	svc, err := s.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("load service %s: %w", serviceID, err)
	}

	credential := in.Credential
	if credential == "" {
		credential = platform.NewCredential()
	}

	accountRef, err := s.aaa.CreateAccount(ctx, clients.CreateAccountRequest{
		Username:        in.Username,
		Credential:      credential,
		IPv4Address:     wfctx.String(CtxIPv4Address),
		IPv6Address:     wfctx.String(CtxIPv6Address),
		DelegatedPrefix: wfctx.String(CtxDelegatedPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("create aaa account: %w", err)
	}

	hash, err := platform.HashCredential(credential)
	if err != nil {
		return nil, err
	}
	svc.Username = &in.Username
	svc.CredentialHash = &hash
	svc.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateService(ctx, svc); err != nil {
		return nil, fmt.Errorf("update service %s: %w", svc.ID, err)
	}

	return &saga.StepResult{
		Output:         map[string]any{CtxAAAAccountRef: accountRef},
		ContextUpdates: map[string]any{CtxAAAAccountRef: accountRef},
		CompensationData: map[string]any{
			compServiceID: svc.ID,
			compUsername:  in.Username,
		},
	}, nil
}

// CreateAAAAccountCompensator deletes the account created by the forward
// step. Without a recorded username there is nothing to do.
type CreateAAAAccountCompensator struct {
	aaa clients.AAA
}

func NewCreateAAAAccountCompensator(aaa clients.AAA) *CreateAAAAccountCompensator {
	return &CreateAAAAccountCompensator{aaa: aaa}
}

func (c *CreateAAAAccountCompensator) Compensate(ctx context.Context, data map[string]any) error {
	username, ok := data[compUsername].(string)
	if !ok || username == "" {
		return nil
	}
	return c.aaa.DeleteAccount(ctx, username)
}
