package models

// Fingerprint is a stable identity for an archive's current contents, used
// as the cache key. Equal fingerprints are treated as contents-identical;
// this is a trust boundary, not a cryptographic guarantee.
type Fingerprint string

func (f Fingerprint) String() string { return string(f) }

// IsZero reports whether the fingerprint has not been computed.
func (f Fingerprint) IsZero() bool { return f == "" }
