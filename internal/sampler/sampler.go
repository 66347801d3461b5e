// Package sampler decides how a file should be fingerprinted: entirely, or
// by its head and tail only. It holds no state and touches no filesystem —
// Decide is a pure function of size and the enable_sampling configuration
// flag, so its thresholds are exhaustively testable without fixtures.
package sampler

import "github.com/jgtierney/dl-organize-sub001/internal/types"

const (
	mib = 1 << 20
	gib = 1 << 30
)

// Threshold boundaries, exactly per spec §4.2.
const (
	largeFileThreshold = 20 * mib
	mediumFileCeiling  = 1 * gib
	largeFileCeiling   = 5 * gib

	smallSampleSize  = 10 * mib
	mediumSampleSize = 20 * mib
	largeSampleSize  = 50 * mib
)

// Plan is the File Sampler's output: either consume the whole stream, or
// consume [0, HeadLen) and [Size-TailLen, Size).
type Plan struct {
	Kind     types.FingerprintKind
	HeadLen  int64
	TailLen  int64
	Size     int64
}

// TotalBytes is the number of bytes the plan actually consumes.
func (p Plan) TotalBytes() int64 {
	if p.Kind == types.KindFull {
		return p.Size
	}
	return p.HeadLen + p.TailLen
}

// Decide picks a Plan for a file of the given size. When enabled is false,
// sampling is never used regardless of size, matching spec §4.2's "sampling
// is optional at the configuration level; when disabled, always full."
func Decide(size int64, enabled bool) Plan {
	if !enabled || size < largeFileThreshold {
		return Plan{Kind: types.KindFull, Size: size}
	}

	var headTail int64
	switch {
	case size < mediumFileCeiling:
		headTail = smallSampleSize
	case size < largeFileCeiling:
		headTail = mediumSampleSize
	default:
		headTail = largeSampleSize
	}

	// Degrade to full rather than let sampled regions overlap.
	if headTail*2 >= size {
		return Plan{Kind: types.KindFull, Size: size}
	}

	return Plan{Kind: types.KindSampled, HeadLen: headTail, TailLen: headTail, Size: size}
}
