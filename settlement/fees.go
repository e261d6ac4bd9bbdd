package settlement

import (
	"math"
	"strings"
)

// platformFeeRate is the marketplace's cut on every completed rent
// payment.
const platformFeeRate = 0.05

// gatewayFeeRates is the canonical per-provider gateway rate table.
// Every fee computation goes through ComputeFees; there is deliberately
// no second copy of these numbers anywhere.
var gatewayFeeRates = map[string]float64{
	"orange": 0.015,
	"mtn":    0.015,
	"moov":   0.015,
	"wave":   0.01,
	"stripe": 0.029,
}

const defaultGatewayFeeRate = 0.015

// ComputeFees returns the total fees withheld from a completed payment
// and the net amount owed to the landlord. Fees are rounded to the
// nearest whole unit (XOF has no subunit).
func ComputeFees(providerName string, amount float64) (fees, net float64) {
	rate, ok := gatewayFeeRates[strings.ToLower(providerName)]
	if !ok {
		rate = defaultGatewayFeeRate
	}

	fees = math.Round(amount * (platformFeeRate + rate))
	net = amount - fees
	return fees, net
}
