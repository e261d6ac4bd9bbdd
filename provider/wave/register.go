package wave

import "github.com/akoun-dev/montoit-sub002/provider"

// Register Wave handlers with the capability registry
func init() {
	h := NewHandler()
	provider.Register(provider.CapabilitySMS, "wave", h)
	provider.Register(provider.CapabilityPaymentNotify, "wave", h)
}
