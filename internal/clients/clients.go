// Package clients defines the capability contracts of the four external
// systems the step handlers call: the IP address management system, the
// AAA subscriber-authentication system, the PON controller and the CPE
// manager. Step handlers and remediation depend only on these interfaces;
// the HTTP implementations in this package are one possible transport.
package clients

import "context"

// Lease is an address or prefix allocation held in the IPAM system.
// Address is a CIDR string; for a delegated prefix it is the prefix itself.
type Lease struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// LeaseSet is the result of a single allocation request. Only the families
// that were requested are populated.
type LeaseSet struct {
	IPv4   *Lease `json:"ipv4,omitempty"`
	IPv6   *Lease `json:"ipv6,omitempty"`
	IPv6PD *Lease `json:"ipv6_pd,omitempty"`
}

// AllocateRequest asks IPAM for an IPv4 lease and, optionally, an IPv6
// lease and/or a delegated IPv6 prefix of PDSize bits carved from the
// parent pool.
type AllocateRequest struct {
	IPv4PoolID         string `json:"ipv4_pool_id,omitempty"`
	IPv6PoolID         string `json:"ipv6_pool_id,omitempty"`
	IPv6PDParentPoolID string `json:"ipv6_pd_parent_pool_id,omitempty"`
	IPv6PDSize         int    `json:"ipv6_pd_size,omitempty"`
	OwnerID            string `json:"owner_id"`
	Description        string `json:"description,omitempty"`
	DNSName            string `json:"dns_name,omitempty"`
	Tenant             string `json:"tenant"`
}

// IPAM is the IP address management system.
type IPAM interface {
	Allocate(ctx context.Context, req AllocateRequest) (*LeaseSet, error)
	Release(ctx context.Context, leaseID string) error
}

// CreateAccountRequest registers subscriber credentials and attaches
// whichever addresses are known at that point.
type CreateAccountRequest struct {
	Username        string `json:"username"`
	Credential      string `json:"credential"`
	IPv4Address     string `json:"ipv4_address,omitempty"`
	IPv6Address     string `json:"ipv6_address,omitempty"`
	DelegatedPrefix string `json:"delegated_prefix,omitempty"`
}

// AAA is the subscriber authentication system.
type AAA interface {
	CreateAccount(ctx context.Context, req CreateAccountRequest) (accountRef string, err error)
	DeleteAccount(ctx context.Context, username string) error
}

// ActivateDeviceRequest enables an optical network unit on a port with a
// single VLAN tag, or an outer+inner pair when double-tagging is enabled.
type ActivateDeviceRequest struct {
	Serial           string `json:"serial"`
	Port             int    `json:"port"`
	VLANID           int    `json:"vlan_id"`
	DoubleTagEnabled bool   `json:"double_tag_enabled"`
	InnerVLANID      int    `json:"inner_vlan_id,omitempty"`
}

// PON is the passive-optical-network controller.
type PON interface {
	ActivateDevice(ctx context.Context, req ActivateDeviceRequest) (deviceRef string, err error)
	DeactivateDevice(ctx context.Context, deviceRef string) error
}

// ConfigureDeviceRequest pushes WAN configuration to the subscriber's
// customer-premises equipment.
type ConfigureDeviceRequest struct {
	MAC                     string `json:"mac"`
	WANIPv4                 string `json:"wan_ipv4,omitempty"`
	WANIPv6                 string `json:"wan_ipv6,omitempty"`
	DelegatedPrefix         string `json:"delegated_prefix,omitempty"`
	PrefixDelegationEnabled bool   `json:"prefix_delegation_enabled"`
}

// CPE is the customer-premises-equipment manager.
type CPE interface {
	ConfigureDevice(ctx context.Context, req ConfigureDeviceRequest) (configRef string, err error)
	RemoveDevice(ctx context.Context, configRef string) error
}
