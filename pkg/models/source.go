package models

import "time"

// SourceStatus is the per-source outcome of a session open. A multi-source
// open reports one status per archive, never a single opaque failure.
type SourceStatus struct {
	Source      string        `json:"source"`
	Mount       string        `json:"mount,omitempty"`
	Fingerprint Fingerprint   `json:"fingerprint,omitempty"`
	Entries     int           `json:"entries"`
	FromCache   bool          `json:"from_cache"`
	Duration    time.Duration `json:"duration"`
	Err         error         `json:"-"`
}

// OK reports whether the source was indexed successfully.
func (s SourceStatus) OK() bool { return s.Err == nil }
