package transition

import "math"

const (
	// DefaultDiscountRate discounts future energy cost changes.
	DefaultDiscountRate = 0.024
	// DefaultAnnuityHorizon is the remaining useful life in years.
	DefaultAnnuityHorizon = 30
)

// AnnuityFactor is the present value of 1 paid yearly for n years at rate r.
// It tends to n as r tends to 0.
func AnnuityFactor(r float64, n int) float64 {
	if math.Abs(r) < 1e-12 {
		return float64(n)
	}
	return (1 - math.Pow(1+r, -float64(n))) / r
}
