package output

import (
	"fmt"
	"os"
	"time"

	"github.com/dj-oyu/screen-recorder/internal/container"
	"github.com/dj-oyu/screen-recorder/internal/telemetry"
	"github.com/dj-oyu/screen-recorder/pkg/types"
)

const module = "Output"

// DefaultDurationTolerance is the allowed gap between the recorded and the
// wall-clock duration of a segment
const DefaultDurationTolerance = time.Second

// Issue names
const (
	IssueDurationMissing   = "durationMissing"
	IssueDurationSkew      = "durationSkew"
	IssueMissingVideoTrack = "missingVideoTrack"
	IssueMissingAudioTrack = "missingAudioTrack"
	IssueEmptyFile         = "emptyFile"
	IssueUnreadable        = "unreadable"
)

// Report is the result of verifying one file
type Report struct {
	Path     string
	Size     int64
	Expected time.Duration
	Recorded time.Duration
	Metadata container.Metadata
	Issues   []string
}

// OK reports whether verification found nothing to warn about
func (r Report) OK() bool { return len(r.Issues) == 0 }

// Verifier reads finalized files back and reports anomalies as warnings
type Verifier struct {
	Tolerance time.Duration
	Inspect   func(path string) (container.Metadata, error)
	Observer  telemetry.Observer
}

// NewVerifier returns a Verifier reading Matroska files
func NewVerifier(obs telemetry.Observer) *Verifier {
	if obs == nil {
		obs = telemetry.Nop()
	}
	return &Verifier{Tolerance: DefaultDurationTolerance, Inspect: container.Inspect, Observer: obs}
}

// Verify inspects path. Expected is the wall-clock duration of the segment;
// zero skips the skew check. Problems are logged and returned, never fatal.
func (v *Verifier) Verify(path string, expected time.Duration) Report {
	obs := v.Observer
	if obs == nil {
		obs = telemetry.Nop()
	}
	r := Report{Path: path, Expected: expected}

	st, err := os.Stat(path)
	if err != nil {
		r.Issues = append(r.Issues, IssueUnreadable)
		obs.Warn(module, "verify %s: %v", path, err)
		obs.Count(telemetry.VerificationIssue, 1)
		return r
	}
	r.Size = st.Size()
	if r.Size == 0 {
		r.Issues = append(r.Issues, IssueEmptyFile)
		obs.Warn(module, "Recording file is empty: %s", path)
		obs.Count(telemetry.VerificationIssue, 1)
		return r
	}

	inspect := v.Inspect
	if inspect == nil {
		inspect = container.Inspect
	}
	md, err := inspect(path)
	if err != nil {
		r.Issues = append(r.Issues, IssueUnreadable)
		obs.Warn(module, "Unable to read metadata for %s: %v", path, err)
		obs.Count(telemetry.VerificationIssue, 1)
		return r
	}
	r.Metadata = md
	r.Recorded = md.Duration

	tolerance := v.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultDurationTolerance
	}
	if !md.HasDuration {
		r.Issues = append(r.Issues, IssueDurationMissing)
	} else if expected > 0 {
		skew := md.Duration - expected
		if skew < 0 {
			skew = -skew
		}
		if skew > tolerance {
			r.Issues = append(r.Issues, fmt.Sprintf("%s=%dms", IssueDurationSkew, skew.Milliseconds()))
		}
	}
	if _, ok := md.Track(types.TrackVideo); !ok {
		r.Issues = append(r.Issues, IssueMissingVideoTrack)
	}
	if _, ok := md.Track(types.TrackAudio); !ok {
		r.Issues = append(r.Issues, IssueMissingAudioTrack)
	}

	obs.Info(module, "File %s size=%d bytes recorded=%dms expected=%dms tracks=%d",
		path, r.Size, md.Duration.Milliseconds(), expected.Milliseconds(), len(md.Tracks))
	if len(r.Issues) > 0 {
		obs.Warn(module, "Recording metadata issues for %s: %v", path, r.Issues)
		obs.Count(telemetry.VerificationIssue, uint64(len(r.Issues)))
	}
	return r
}
