package orange

import "github.com/akoun-dev/montoit-sub002/provider"

// Register Orange handlers with the capability registry
func init() {
	sms := NewSMSHandler()
	provider.Register(provider.CapabilitySMS, "orange", sms)
	provider.Register(provider.CapabilityPaymentNotify, "orange", sms)
	provider.Register(provider.CapabilityWhatsApp, "orange", NewWhatsAppHandler())
}
