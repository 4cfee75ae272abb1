package common

import (
	"golang.org/x/exp/constraints"
)

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// AlignUp rounds v up to the next multiple of align. align must be greater than zero.
func AlignUp[T constraints.Integer](v, align T) T {
	return (v + align - 1) / align * align
}

// NextPowerOfTwo returns the smallest power of two that is greater than or equal to v (minimum 1).
func NextPowerOfTwo[T constraints.Unsigned](v T) T {
	n := T(1)
	for n < v {
		n <<= 1
	}
	return n
}

// Clamp limits v to the closed range [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	return min(max(v, lo), hi)
}
