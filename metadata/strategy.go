package metadata

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapmm"
)

// FitPolicy selects how a free block is chosen for a new allocation
type FitPolicy uint32

const (
	// FitFirst selects the free block with the lowest offset that is large enough
	FitFirst FitPolicy = iota + 1
	// FitNext resumes scanning where the previous successful search ended, wrapping around
	// to the start of the heap
	FitNext
	// FitBest selects the smallest free block that is large enough, preferring the lowest
	// offset among equal sizes. It minimizes fragmentation at the cost of a full scan.
	FitBest
)

var fitPolicyMapping = map[FitPolicy]string{
	FitFirst: "FirstFit",
	FitNext:  "NextFit",
	FitBest:  "BestFit",
}

func (p FitPolicy) String() string {
	return fitPolicyMapping[p]
}

// ParseFitPolicy accepts "first", "next" or "best", with or without a "fit" suffix
func ParseFitPolicy(name string) (FitPolicy, error) {
	normalized := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), "fit")
	normalized = strings.TrimSuffix(normalized, "-")
	normalized = strings.TrimSuffix(normalized, "_")

	switch normalized {
	case "first":
		return FitFirst, nil
	case "next":
		return FitNext, nil
	case "best":
		return FitBest, nil
	}

	return 0, errors.Wrapf(heapmm.ErrInvalidPolicy, "unknown policy %q", name)
}
