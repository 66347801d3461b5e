// Package mediaprobe extracts duration, codec, and resolution from media
// containers via ffprobe. No example in the retrieval pack wraps ffprobe
// behind a Go client library — the one ffmpeg-touching sample shells out to
// it directly too — so this package does the same with os/exec rather than
// reaching for a dependency that doesn't exist in the ecosystem this module
// otherwise draws on.
package mediaprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/jgtierney/dl-organize-sub001/internal/types"
)

// Prober is a capability, not a hard dependency (Design Notes §9): the
// Detector degrades to hash-only pre-filtering when one isn't configured,
// and probing failures are never escalated to errors — they just mean the
// caller learns nothing extra.
type Prober interface {
	// Probe returns (nil, nil) whenever duration/codec/resolution cannot be
	// determined; it never returns an error for a probing failure, only for
	// caller misuse (e.g. an empty path).
	Probe(ctx context.Context, path string) (*types.MediaFacts, error)
}

// Null is a Prober that always reports "unknown", for configurations where
// media probing is disabled.
type Null struct{}

func (Null) Probe(context.Context, string) (*types.MediaFacts, error) {
	return nil, nil
}

// FFProbe shells out to the ffprobe binary.
type FFProbe struct {
	// Binary overrides the executable name/path; defaults to "ffprobe".
	Binary string
	// Timeout bounds each probe invocation; zero means no timeout.
	Timeout time.Duration
	// ProbeCodec and ProbeResolution gate whether Probe populates those
	// MediaFacts fields at all; duration is always extracted when present,
	// since the Detector's duration pre-filter depends on it regardless of
	// these two flags.
	ProbeCodec      bool
	ProbeResolution bool
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type ffprobeOutput struct {
	Format  ffprobeFormat    `json:"format"`
	Streams []ffprobeStream  `json:"streams"`
}

// Probe runs ffprobe and parses its JSON report. Any failure — missing
// binary, non-media file, malformed output — yields (nil, nil): probing is
// advisory only (spec §4.3) and must never abort the pipeline.
func (p FFProbe) Probe(ctx context.Context, path string) (*types.MediaFacts, error) {
	if path == "" {
		return nil, fmt.Errorf("mediaprobe: empty path")
	}

	bin := p.Binary
	if bin == "" {
		bin = "ffprobe"
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if p.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, nil //nolint:nilerr // probing is tolerant: a failed run just means "unknown"
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, nil //nolint:nilerr // malformed output is treated as "unknown", not an error
	}

	return parseFFProbeOutput(p, out), nil
}

// parseFFProbeOutput turns a decoded ffprobe report into MediaFacts,
// gating codec/resolution extraction on p's flags; duration is extracted
// unconditionally since the Detector's duration pre-filter depends on it
// regardless of those flags. Split out from Probe so the gating logic is
// testable without shelling out to a real ffprobe binary.
func parseFFProbeOutput(p FFProbe, out ffprobeOutput) *types.MediaFacts {
	facts := &types.MediaFacts{}
	if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
		facts.DurationSeconds = d
	}
	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		if p.ProbeCodec {
			facts.Codec = s.CodecName
		}
		if p.ProbeResolution && s.Width > 0 && s.Height > 0 {
			facts.Resolution = fmt.Sprintf("%dx%d", s.Width, s.Height)
		}
		break
	}

	if facts.DurationSeconds == 0 && facts.Codec == "" && facts.Resolution == "" {
		return nil
	}
	return facts
}

// VideoExtensions lists extensions the Detector treats as "is a video" for
// the purpose of deciding whether a size bucket needs duration pre-filtering
// (spec §4.4 step 5).
var VideoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true, ".wmv": true,
	".flv": true, ".webm": true, ".m4v": true, ".mpg": true, ".mpeg": true,
	".ts": true, ".3gp": true,
}

// IsVideo reports whether ext (as produced by types.FileMetadata.Ext, i.e.
// lowercased with leading dot) names a recognized video container.
func IsVideo(ext string) bool {
	return VideoExtensions[ext]
}
