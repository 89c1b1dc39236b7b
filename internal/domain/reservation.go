package domain

import "math"

// ServiceFee computes the organizer fee on top of a subtotal, rounded half away
// from zero to the minor unit.
func ServiceFee(subtotal int64, percent float64) int64 {
	if percent <= 0 || subtotal <= 0 {
		return 0
	}
	return int64(math.Round(float64(subtotal) * percent / 100))
}
