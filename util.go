package heapmm

import (
	"math"

	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

func CheckPow2[T constraints.Integer](number T, name string) error {
	if number <= 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// AlignUp rounds value up to the next multiple of alignment, which must be a power of two
func AlignUp[T constraints.Integer](value T, alignment T) T {
	return (value + alignment - 1) &^ (alignment - 1)
}

// AlignDown rounds value down to a multiple of alignment, which must be a power of two
func AlignDown[T constraints.Integer](value T, alignment T) T {
	return value &^ (alignment - 1)
}

// CheckedAdd returns a+b, or ErrCapacityOverflow if the sum does not fit in an int. Both
// operands must be non-negative.
func CheckedAdd(a, b int) (int, error) {
	if a > math.MaxInt-b {
		return 0, cerrors.Wrapf(ErrCapacityOverflow, "%d + %d", a, b)
	}
	return a + b, nil
}

// CheckedMul returns a*b, or ErrCapacityOverflow if the product does not fit in an int. Both
// operands must be non-negative.
func CheckedMul(a, b int) (int, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > math.MaxInt/b {
		return 0, cerrors.Wrapf(ErrCapacityOverflow, "%d * %d", a, b)
	}
	return a * b, nil
}
