package heapmm

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/pkg/errors"
)

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

var (
	// ErrHeapNotClean is returned when a heap is created over a provider region that has already been extended
	ErrHeapNotClean = errors.New("heap not clean")
	// ErrZeroPageSize is returned when the provider reports a page size of 0
	ErrZeroPageSize = errors.New("reported page size is 0")
	// ErrInvalidPolicy is returned when an unknown fit policy is requested
	ErrInvalidPolicy = errors.New("invalid allocation policy")
	// ErrOutOfMemory is returned when the provider cannot extend its region any further
	ErrOutOfMemory = errors.New("cannot increase heap break")
	// ErrGrowthExhausted is returned when a request still has no fitting block after the maximum
	// number of heap extensions
	ErrGrowthExhausted = errors.New("no fitting block after extending the heap")

	// ErrCapacityOverflow is returned when a requested size cannot be represented once block
	// overhead is added, or when count*size overflows
	ErrCapacityOverflow = errors.New("requested size overflows")
	// ErrInvalidSize is returned for negative sizes
	ErrInvalidSize = errors.New("invalid size")
	// ErrInvalidPointer is returned when a pointer does not refer to a payload inside the heap
	ErrInvalidPointer = errors.New("pointer does not refer to a heap payload")
	// ErrCorrupt is returned by validation and traversal when the block structure is inconsistent
	ErrCorrupt = errors.New("heap block structure is corrupt")
)

// IsFatal returns true if err is one of the unrecoverable environment or configuration errors.
// A heap that has produced a fatal error must not be used any further.
func IsFatal(err error) bool {
	return cerrors.IsAny(err, ErrHeapNotClean, ErrZeroPageSize, ErrInvalidPolicy, ErrOutOfMemory, ErrGrowthExhausted)
}
