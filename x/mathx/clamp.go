// Package mathx holds small generic numeric helpers.
package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// OrDefault returns d when v is the zero value.
func OrDefault[T comparable](v, d T) T {
	var zero T
	if v == zero {
		return d
	}
	return v
}
