package cache

import (
	"net/url"
	"strings"
	"time"
)

// Key identifies a cached result by the semantic parameters of the request
// that produced it. Two requests that would produce different responses must
// differ in at least one field.
type Key struct {
	Route  string
	Level  string
	Window string
	Format string
	Extra  string
}

// String returns the canonical encoding of k. Fields are escaped so that a
// separator inside one field cannot make two distinct keys collide.
func (k Key) String() string {
	parts := [...]string{k.Route, k.Level, k.Window, k.Format, k.Extra}
	for i, p := range parts {
		parts[i] = url.QueryEscape(p)
	}
	return strings.Join(parts[:], "|")
}

// Policy says whether an entry can expire.
type Policy int

const (
	// Temporary entries expire once their TTL elapses.
	Temporary Policy = iota
	// Permanent entries live until overwritten.
	Permanent
)

// Expiry is the lifetime requested on Put.
type Expiry struct {
	Policy Policy
	TTL    time.Duration
}

// Forever returns the expiry used for rarely changing reference data.
func Forever() Expiry { return Expiry{Policy: Permanent} }

// For returns a temporary expiry of ttl. A ttl <= 0 is already expired.
func For(ttl time.Duration) Expiry { return Expiry{Policy: Temporary, TTL: ttl} }
