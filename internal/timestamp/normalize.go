// Package timestamp converts upstream reading times to the canonical
// fixed-offset wall clock used for storage.
package timestamp

import (
	"regexp"
	"time"
)

// Layout is the canonical stored format.
const Layout = "2006-01-02 15:04:05"

// DefaultOffset is the canonical UTC+7 offset.
const DefaultOffset = 7 * time.Hour

// upstreamPattern matches "YYYY-MM-DD HH:MM:SS" with an optional fraction.
var upstreamPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(\.\d+)?$`)

// Normalizer shifts naive UTC upstream times by a fixed offset and clamps
// values that land in the future.
type Normalizer struct {
	Offset time.Duration
	Now    func() time.Time
}

// New creates a normalizer for the given offset using the wall clock.
func New(offset time.Duration) *Normalizer {
	return &Normalizer{
		Offset: offset,
		Now:    time.Now,
	}
}

// Local returns t expressed on the canonical wall clock. The result carries
// the UTC location; only its fields are meaningful.
func (n *Normalizer) Local(t time.Time) time.Time {
	return t.UTC().Add(n.Offset)
}

// NowLocal returns the current instant on the canonical wall clock.
func (n *Normalizer) NowLocal() time.Time {
	return n.Local(n.now())
}

// Normalize converts an upstream time string to the canonical layout.
// Strings that are not upstream times are returned unchanged.
func (n *Normalizer) Normalize(raw string) string {
	if !upstreamPattern.MatchString(raw) {
		return raw
	}
	parsed, err := time.ParseInLocation(Layout, raw, time.UTC)
	if err != nil {
		return raw
	}

	shifted := parsed.Add(n.Offset)
	nowLocal := n.NowLocal()
	if shifted.After(nowLocal) {
		shifted = clamp(shifted, nowLocal)
	}
	return shifted.Format(Layout)
}

// clamp folds a future value back to now's hour keeping its minute and
// second, then one hour earlier, then now itself.
func clamp(value, nowLocal time.Time) time.Time {
	candidate := time.Date(
		nowLocal.Year(), nowLocal.Month(), nowLocal.Day(),
		nowLocal.Hour(), value.Minute(), value.Second(), 0,
		time.UTC,
	)
	if candidate.After(nowLocal) {
		candidate = candidate.Add(-time.Hour)
	}
	if candidate.After(nowLocal) {
		return nowLocal
	}
	return candidate
}

// Parse reads a canonical time string back into an instant.
func (n *Normalizer) Parse(value string) (time.Time, error) {
	local, err := time.ParseInLocation(Layout, value, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return local.Add(-n.Offset), nil
}

func (n *Normalizer) now() time.Time {
	if n.Now == nil {
		return time.Now()
	}
	return n.Now()
}

// Window returns the request window [now-span, now) in epoch milliseconds.
func Window(now time.Time, span time.Duration) (startMs, endMs int64) {
	endMs = now.UnixMilli()
	return endMs - span.Milliseconds(), endMs
}
