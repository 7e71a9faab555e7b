package gateway

// FeeSchedule is a provider fee model: percentage parts in basis points plus a
// fixed gateway charge in the smallest currency unit.
type FeeSchedule struct {
	PlatformBps  int
	GatewayBps   int
	GatewayFixed int64
}

// Quote computes the fee breakdown for an amount. Purely arithmetic; basis
// point products round down, matching how the providers themselves truncate.
func (f FeeSchedule) Quote(amount int64) FeeQuote {
	platform := amount * int64(f.PlatformBps) / 10000
	gw := amount*int64(f.GatewayBps)/10000 + f.GatewayFixed
	return FeeQuote{
		PlatformFee: platform,
		GatewayFee:  gw,
		TotalFees:   platform + gw,
	}
}
