// Package steps implements the step handlers and compensators for the
// subscriber provisioning and deprovisioning workflows.
package steps

// Input key injected by the facade before execution.
const InputServiceID = "service_id"

// Context keys written by the provisioning steps. Later steps read them;
// keys are never overwritten.
const (
	CtxIPv4Address     = "ipv4_address"
	CtxIPv6Address     = "ipv6_address"
	CtxDelegatedPrefix = "delegated_prefix"
	CtxAAAAccountRef   = "aaa_account_ref"
	CtxPONDeviceRef    = "pon_device_ref"
	CtxCPEConfigRef    = "cpe_config_ref"
	CtxArchiveKey      = "archive_key"
)

// Compensation data keys.
const (
	compServiceID    = "service_id"
	compIPv4LeaseID  = "ipv4_lease_id"
	compIPv6LeaseID  = "ipv6_lease_id"
	compPDLeaseID    = "ipv6_pd_lease_id"
	compUsername     = "username"
	compPONDeviceRef = "device_ref"
	compCPEConfigRef = "config_ref"
)
