package marketdata

import "sync/atomic"

// KeyRing rotates API keys round-robin across requests. An empty ring
// sends no key header, which some self-hosted gateways accept.
type KeyRing struct {
	keys []string
	next atomic.Uint64
}

// NewKeyRing creates a key ring from the configured key list.
func NewKeyRing(keys []string) *KeyRing {
	cp := make([]string, len(keys))
	copy(cp, keys)
	return &KeyRing{keys: cp}
}

// Next returns the next key in rotation, or "" if the ring is empty.
func (r *KeyRing) Next() string {
	if len(r.keys) == 0 {
		return ""
	}
	n := r.next.Add(1) - 1
	return r.keys[n%uint64(len(r.keys))]
}

// Len reports the number of keys in the ring.
func (r *KeyRing) Len() int {
	return len(r.keys)
}
