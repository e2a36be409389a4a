package cache

import (
	"time"
)

// Entry is a cached ISS response body.
type Entry struct {
	// Data is the response body.
	Data []byte `json:"data"`

	// ContentType is the Content-Type of the original response.
	ContentType string `json:"content_type,omitempty"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`

	// CachedAt is when the entry was stored.
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry creates an entry for data that stays fresh for ttl.
func NewEntry(data []byte, contentType string, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Data:        data,
		ContentType: contentType,
		Expires:     now.Add(ttl),
		CachedAt:    now,
	}
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return !time.Now().Before(e.Expires)
}

// TTL returns the time until expiration, 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
