package model

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ProvisionInput is the typed form of the provision-subscriber workflow's
// input data. Static addresses, when supplied, are used verbatim and no
// IPAM allocation (or release) happens for the corresponding family.
type ProvisionInput struct {
	SubscriberID string `json:"subscriber_id" validate:"required"`
	Username     string `json:"username" validate:"required"`
	Credential   string `json:"credential,omitempty"`
	DNSName      string `json:"dns_name,omitempty" validate:"omitempty,hostname_rfc1123"`

	IPv4PoolID string `json:"ipv4_pool_id,omitempty"`
	StaticIPv4 string `json:"static_ipv4,omitempty" validate:"omitempty,cidr"`

	IPv6Enabled bool   `json:"ipv6_enabled"`
	IPv6PoolID  string `json:"ipv6_pool_id,omitempty" validate:"required_if=IPv6Enabled true"`
	StaticIPv6  string `json:"static_ipv6,omitempty" validate:"omitempty,cidr"`

	PDEnabled      bool   `json:"pd_enabled"`
	PDParentPoolID string `json:"pd_parent_pool_id,omitempty" validate:"required_if=PDEnabled true"`
	PDSize         int    `json:"pd_size,omitempty" validate:"omitempty,min=48,max=64"`

	ONUSerial string `json:"onu_serial" validate:"required"`
	ONUPort   int    `json:"onu_port" validate:"min=0"`

	VLANID           int  `json:"vlan_id" validate:"required,min=1,max=4094"`
	DoubleTagEnabled bool `json:"double_tag_enabled"`
	InnerVLANID      int  `json:"inner_vlan_id,omitempty" validate:"required_if=DoubleTagEnabled true,omitempty,min=1,max=4094"`

	CPEMAC string `json:"cpe_mac" validate:"required,mac"`
}

// DeprovisionInput is the typed form of the deprovision-subscriber
// workflow's input data.
type DeprovisionInput struct {
	ServiceID string `json:"service_id" validate:"required"`
}

// DecodeProvisionInput decodes and validates untyped workflow input.
func DecodeProvisionInput(data InputData) (*ProvisionInput, error) {
	var in ProvisionInput
	if err := decodeInput(data, &in); err != nil {
		return nil, err
	}
	if in.StaticIPv4 == "" && in.IPv4PoolID == "" {
		return nil, fmt.Errorf("either ipv4_pool_id or static_ipv4 is required")
	}
	return &in, nil
}

// DecodeDeprovisionInput decodes and validates untyped workflow input.
func DecodeDeprovisionInput(data InputData) (*DeprovisionInput, error) {
	var in DeprovisionInput
	if err := decodeInput(data, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

func decodeInput(data InputData, dst any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode input: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return err
	}
	return nil
}
