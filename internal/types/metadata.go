package types

import "time"

// FileMetadata is the scan-time snapshot of one regular file, produced by the
// walker. It never carries a fingerprint at construction time — hashing is a
// separate, later decision made by the detector.
type FileMetadata struct {
	Path    string // absolute, UTF-8
	Size    int64
	ModTime time.Time
	// Ext is the lowercased extension including the leading dot, or "" when
	// the file has none. Populated once at construction so filters never
	// re-derive it from Path.
	Ext string
}

// MediaFacts are the results of an optional, best-effort media probe. A zero
// value never appears alone: the detector and hash cache always carry it as
// an *MediaFacts so "never probed" and "probed, nothing extracted" are both
// representable as nil without an extra boolean.
type MediaFacts struct {
	DurationSeconds float64
	Codec           string
	Resolution      string // opaque "WxH" form, "" when unknown
}

// DurationEqual reports whether two durations are "equal for the purpose of
// pre-filtering" per the ±1.0s tolerance in spec §4.3.
func DurationEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= 1.0
}
