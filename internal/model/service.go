package model

import "time"

// ProvisionedService is the resource-bearing record of a subscriber's
// network service. Step handlers populate its fields during forward
// execution; compensation and remediation rollback clear them field by
// field. It outlives any individual workflow instance.
type ProvisionedService struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenant_id"`
	SubscriberID string `json:"subscriber_id"`
	Status       string `json:"status"`

	// Address assignment.
	IPv4Address     *string `json:"ipv4_address,omitempty"`
	IPv6Address     *string `json:"ipv6_address,omitempty"`
	DelegatedPrefix *string `json:"delegated_prefix,omitempty"`
	IPv4LeaseID     *string `json:"ipv4_lease_id,omitempty"`
	IPv6LeaseID     *string `json:"ipv6_lease_id,omitempty"`
	IPv6PDLeaseID   *string `json:"ipv6_pd_lease_id,omitempty"`

	// Network segment.
	VLANID       *int    `json:"vlan_id,omitempty"`
	InnerVLANID  *int    `json:"inner_vlan_id,omitempty"`
	PONDeviceRef *string `json:"pon_device_ref,omitempty"`

	// Equipment inventory references (ONU serial, CPE MAC).
	EquipmentRefs []string `json:"equipment_refs,omitempty"`

	// Identifier of the pushed device configuration in the CPE manager.
	ExternalDeviceID *string `json:"external_device_id,omitempty"`

	// AAA account identity.
	Username       *string `json:"username,omitempty"`
	CredentialHash *string `json:"credential_hash,omitempty"`

	// Rollback metadata, recorded by remediation.
	RollbackReason *string    `json:"rollback_reason,omitempty"`
	RollbackSteps  []string   `json:"rollback_steps,omitempty"`
	RolledBackAt   *time.Time `json:"rolled_back_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
