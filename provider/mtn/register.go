package mtn

import "github.com/akoun-dev/montoit-sub002/provider"

// Register MTN handlers with the capability registry
func init() {
	h := NewHandler()
	provider.Register(provider.CapabilitySMS, "mtn", h)
	provider.Register(provider.CapabilityPaymentNotify, "mtn", h)
}
