package model

// TokenBucket counts consumed tokens by category for a single record or an
// accumulated group of records. All fields are non-negative.
type TokenBucket struct {
	Input      int64 `json:"input"`
	Output     int64 `json:"output"`
	Reasoning  int64 `json:"reasoning"`
	CacheRead  int64 `json:"cache_read"`
	CacheWrite int64 `json:"cache_write"`
}

// Add accumulates another bucket componentwise.
func (b *TokenBucket) Add(other TokenBucket) {
	b.Input += other.Input
	b.Output += other.Output
	b.Reasoning += other.Reasoning
	b.CacheRead += other.CacheRead
	b.CacheWrite += other.CacheWrite
}

// Total returns the sum of all token categories.
func (b TokenBucket) Total() int64 {
	return b.Input + b.Output + b.Reasoning + b.CacheRead + b.CacheWrite
}

// IsZero reports whether every category is zero.
func (b TokenBucket) IsZero() bool {
	return b.Total() == 0
}

// UsageRecord is one logged assistant reply. Records are written by the
// client integrations and are read-only here.
type UsageRecord struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionID"`
	Provider  string      `json:"provider"` // source provider, e.g. "opencode"
	Model     string      `json:"model"`    // source model id as logged
	Tokens    TokenBucket `json:"tokens"`
	Timestamp int64       `json:"timestamp"` // epoch milliseconds
}

// SessionMeta carries display metadata for a session.
type SessionMeta struct {
	Title string `json:"title,omitempty"`
}
