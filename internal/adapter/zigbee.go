package adapter

// ZigbeeInfo is the Zigbee-specific device metadata an adapter can
// attach to its announce. It rides inside the device metadata map
// under the "zigbee" key.
type ZigbeeInfo struct {
	IEEEAddress     string
	NetworkAddress  *uint16
	Endpoints       []uint8
	PowerSource     string
	FirmwareVersion string
}

// NewZigbeeInfo creates a ZigbeeInfo for the given IEEE address.
func NewZigbeeInfo(ieeeAddress string) *ZigbeeInfo {
	return &ZigbeeInfo{IEEEAddress: ieeeAddress}
}

// WithNetworkAddress sets the short network address.
func (z *ZigbeeInfo) WithNetworkAddress(addr uint16) *ZigbeeInfo {
	z.NetworkAddress = &addr
	return z
}

// WithEndpoints sets the endpoint list.
func (z *ZigbeeInfo) WithEndpoints(endpoints []uint8) *ZigbeeInfo {
	z.Endpoints = endpoints
	return z
}

// WithPowerSource sets the power source description.
func (z *ZigbeeInfo) WithPowerSource(source string) *ZigbeeInfo {
	z.PowerSource = source
	return z
}

// WithFirmwareVersion sets the firmware version string.
func (z *ZigbeeInfo) WithFirmwareVersion(version string) *ZigbeeInfo {
	z.FirmwareVersion = version
	return z
}

// attributeMap renders the info as announce metadata.
func (z *ZigbeeInfo) attributeMap() map[string]any {
	m := map[string]any{"ieee_address": z.IEEEAddress}
	if z.NetworkAddress != nil {
		m["network_address"] = int(*z.NetworkAddress)
	}
	if len(z.Endpoints) > 0 {
		endpoints := make([]any, len(z.Endpoints))
		for i, e := range z.Endpoints {
			endpoints[i] = int(e)
		}
		m["endpoints"] = endpoints
	}
	if z.PowerSource != "" {
		m["power_source"] = z.PowerSource
	}
	if z.FirmwareVersion != "" {
		m["firmware_version"] = z.FirmwareVersion
	}
	return m
}
