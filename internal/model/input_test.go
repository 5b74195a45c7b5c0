package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProvisionInput() InputData {
	return InputData{
		"subscriber_id": "sub-1001",
		"username":      "alice@isp",
		"ipv4_pool_id":  "pool-v4-resi",
		"onu_serial":    "ALCL:F0001234",
		"onu_port":      1,
		"vlan_id":       100,
		"cpe_mac":       "aa:bb:cc:dd:ee:ff",
	}
}

func TestDecodeProvisionInput_Valid(t *testing.T) {
	in, err := DecodeProvisionInput(validProvisionInput())
	require.NoError(t, err)
	assert.Equal(t, "sub-1001", in.SubscriberID)
	assert.Equal(t, 100, in.VLANID)
	assert.False(t, in.IPv6Enabled)
}

func TestDecodeProvisionInput_MissingRequired(t *testing.T) {
	data := validProvisionInput()
	delete(data, "username")

	_, err := DecodeProvisionInput(data)
	assert.Error(t, err)
}

func TestDecodeProvisionInput_NoIPv4Source(t *testing.T) {
	data := validProvisionInput()
	delete(data, "ipv4_pool_id")

	_, err := DecodeProvisionInput(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ipv4_pool_id or static_ipv4")
}

func TestDecodeProvisionInput_StaticIPv4(t *testing.T) {
	data := validProvisionInput()
	delete(data, "ipv4_pool_id")
	data["static_ipv4"] = "203.0.113.5/32"

	in, err := DecodeProvisionInput(data)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.5/32", in.StaticIPv4)
}

func TestDecodeProvisionInput_StaticIPv4NotCIDR(t *testing.T) {
	data := validProvisionInput()
	data["static_ipv4"] = "203.0.113.5"

	_, err := DecodeProvisionInput(data)
	assert.Error(t, err)
}

func TestDecodeProvisionInput_IPv6RequiresPool(t *testing.T) {
	data := validProvisionInput()
	data["ipv6_enabled"] = true

	_, err := DecodeProvisionInput(data)
	require.Error(t, err)

	data["ipv6_pool_id"] = "pool-v6-resi"
	_, err = DecodeProvisionInput(data)
	assert.NoError(t, err)
}

func TestDecodeProvisionInput_PDRequiresParentPool(t *testing.T) {
	data := validProvisionInput()
	data["pd_enabled"] = true

	_, err := DecodeProvisionInput(data)
	require.Error(t, err)

	data["pd_parent_pool_id"] = "pool-pd"
	_, err = DecodeProvisionInput(data)
	assert.NoError(t, err)
}

func TestDecodeProvisionInput_PDSizeBounds(t *testing.T) {
	data := validProvisionInput()
	data["pd_enabled"] = true
	data["pd_parent_pool_id"] = "pool-pd"

	data["pd_size"] = 56
	_, err := DecodeProvisionInput(data)
	assert.NoError(t, err)

	data["pd_size"] = 47
	_, err = DecodeProvisionInput(data)
	assert.Error(t, err)

	data["pd_size"] = 65
	_, err = DecodeProvisionInput(data)
	assert.Error(t, err)
}

func TestDecodeProvisionInput_VLANBounds(t *testing.T) {
	data := validProvisionInput()

	data["vlan_id"] = 4095
	_, err := DecodeProvisionInput(data)
	assert.Error(t, err)

	data["vlan_id"] = 0
	_, err = DecodeProvisionInput(data)
	assert.Error(t, err)
}

func TestDecodeProvisionInput_DoubleTagRequiresInnerVLAN(t *testing.T) {
	data := validProvisionInput()
	data["double_tag_enabled"] = true

	_, err := DecodeProvisionInput(data)
	require.Error(t, err)

	data["inner_vlan_id"] = 1000
	_, err = DecodeProvisionInput(data)
	assert.NoError(t, err)
}

func TestDecodeProvisionInput_BadMAC(t *testing.T) {
	data := validProvisionInput()
	data["cpe_mac"] = "not-a-mac"

	_, err := DecodeProvisionInput(data)
	assert.Error(t, err)
}

func TestDecodeDeprovisionInput(t *testing.T) {
	in, err := DecodeDeprovisionInput(InputData{"service_id": "svc_abc"})
	require.NoError(t, err)
	assert.Equal(t, "svc_abc", in.ServiceID)

	_, err = DecodeDeprovisionInput(InputData{})
	assert.Error(t, err)
}
