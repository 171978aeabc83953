package cose

import (
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Bucket identifies which of the three header maps a parameter lives in:
// protected (integrity-covered), unprotected (plaintext on the wire), or
// do-not-send (never serialized, used only for AAD/KDF inputs such as the
// "external" field).
type Bucket int

const (
	BucketProtected Bucket = 1 << iota
	BucketUnprotected
	BucketDoNotSend
)

// BucketBoth is the mask HeaderGet uses by default: protected or unprotected.
const BucketBoth = BucketProtected | BucketUnprotected

// Reserved header labels (RFC 9052 section 3.1).
const (
	HeaderLabelAlg         = 1
	HeaderLabelCrit        = 2
	HeaderLabelContentType = 3
	HeaderLabelKid         = 4
	HeaderLabelIV          = 5
	HeaderLabelPartialIV   = 6
	HeaderLabelCounterSig  = 7

	// HeaderLabelEphemeralKey and HeaderLabelStaticKey are the COSE_KDF
	// recipient parameters carrying the sender's EC key for ECDH (RFC 9053
	// section 6.1.1 / 6.1.2 context parameters -1 and -2 inside the
	// recipient's own header space, -- *not* to be confused with COSE_Key's
	// EC2 field labels of the same numeric value, which live inside a
	// nested COSE_Key map rather than directly in a header bucket).
	HeaderLabelEphemeralKey   = -1
	HeaderLabelStaticKey      = -2
	HeaderLabelPartyUIdentity = -21
	HeaderLabelPartyUNonce    = -22
	HeaderLabelPartyUOther    = -23
	HeaderLabelPartyVIdentity = -24
	HeaderLabelPartyVNonce    = -25
	HeaderLabelPartyVOther    = -26
	HeaderLabelSalt           = -20
)

// HeaderBucket holds the protected, unprotected, and do-not-send header
// maps: at most one bucket may claim a given integer key.
type HeaderBucket struct {
	mu sync.Mutex

	protected   map[int64]interface{}
	unprotected map[int64]interface{}
	doNotSend   map[int64]interface{}

	protectedBytes []byte // cached result of the last EncodeProtected

	// directFlag records whether the alg most recently Put into any bucket
	// belongs to a direct-like family. This is a cache, not ground truth --
	// RecipientEngine always recomputes from the live alg value rather than
	// trusting this flag.
	directFlag bool
}

// NewHeaderBucket returns an empty, ready-to-use header bucket.
func NewHeaderBucket() *HeaderBucket {
	return &HeaderBucket{
		protected:   make(map[int64]interface{}),
		unprotected: make(map[int64]interface{}),
		doNotSend:   make(map[int64]interface{}),
	}
}

// Put stores value under key in the given bucket. It fails with
// ErrInvalidParameter if key already lives in a different bucket; a Put into
// the *same* bucket the key already occupies replaces the existing value.
func (h *HeaderBucket) Put(key int64, value interface{}, bucket Bucket) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for b, m := range h.maps() {
		if b == bucket {
			continue
		}
		if _, exists := m[key]; exists {
			return fmt.Errorf("%w: header key %d already present in another bucket", ErrInvalidParameter, key)
		}
	}

	target, err := h.mapFor(bucket)
	if err != nil {
		return err
	}
	target[key] = value

	if key == HeaderLabelAlg {
		h.directFlag = h.isDirectLikeValue(value)
	}
	if bucket == BucketProtected {
		h.protectedBytes = nil // protected map changed; bstr must be recomputed
	}
	return nil
}

func (h *HeaderBucket) isDirectLikeValue(value interface{}) bool {
	alg, err := toInt64(value)
	if err != nil {
		return false
	}
	rec, err := LookupAlgorithm(alg)
	if err != nil {
		return false
	}
	return IsDirectLike(rec.Family)
}

// Get returns the value stored under key from any bucket in mask (e.g.
// BucketBoth for "protected or unprotected"). The found bool mirrors the
// "not found -> null + NOT_FOUND only when the caller asked" rule: ordinary
// Get is silent, GetStrict returns ErrNotFound.
func (h *HeaderBucket) Get(key int64, mask Bucket) (interface{}, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for b, m := range h.maps() {
		if mask&b == 0 {
			continue
		}
		if v, ok := m[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// GetStrict is Get but returns ErrNotFound instead of a silent miss.
func (h *HeaderBucket) GetStrict(key int64, mask Bucket) (interface{}, error) {
	v, ok := h.Get(key, mask)
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

// GetInt64 is a convenience wrapper for the very common case of an integer
// header parameter (alg, iv length hints, key-data-length, and so on).
func (h *HeaderBucket) GetInt64(key int64, mask Bucket) (int64, bool) {
	v, ok := h.Get(key, mask)
	if !ok {
		return 0, false
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// GetBytes is a convenience wrapper for byte-string header parameters (iv,
// kid, ephemeral/static key material carried raw rather than as COSE_Key).
func (h *HeaderBucket) GetBytes(key int64, mask Bucket) ([]byte, bool) {
	v, ok := h.Get(key, mask)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// Alg resolves the alg header (checked in both buckets, as algorithm
// identification is never secret) to its registry record.
func (h *HeaderBucket) Alg() (AlgRecord, error) {
	v, ok := h.Get(HeaderLabelAlg, BucketBoth)
	if !ok {
		return AlgRecord{}, fmt.Errorf("%w: missing alg header", ErrUnknownAlgorithm)
	}
	alg, err := toInt64(v)
	if err != nil {
		return AlgRecord{}, fmt.Errorf("%w: non-integer alg header", ErrUnknownAlgorithm)
	}
	return LookupAlgorithm(alg)
}

// IsDirectLike recomputes directness from the live alg value: the cached
// directFlag is never trusted as ground truth.
func (h *HeaderBucket) IsDirectLike() bool {
	rec, err := h.Alg()
	if err != nil {
		return false
	}
	return IsDirectLike(rec.Family)
}

// EncodeProtected serializes the protected map to canonical CBOR. An empty
// protected map serializes to the zero-length byte string, matching the
// convention this package requires and that is round-trip tested by
// TestHeaderBucket_EmptyProtectedIsZeroLength.
func (h *HeaderBucket) EncodeProtected() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.encodeProtectedLocked()
}

func (h *HeaderBucket) encodeProtectedLocked() ([]byte, error) {
	if h.protectedBytes != nil {
		return h.protectedBytes, nil
	}
	if len(h.protected) == 0 {
		h.protectedBytes = []byte{}
		return h.protectedBytes, nil
	}
	b, err := canonicalEncMode.Marshal(h.protected)
	if err != nil {
		return nil, fmt.Errorf("%w: encode protected headers: %v", ErrCBOR, err)
	}
	h.protectedBytes = b
	return b, nil
}

// UnprotectedMap returns a defensive copy of the unprotected bucket, ready
// for CBOR marshaling into the message's array slot.
func (h *HeaderBucket) UnprotectedMap() map[int64]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[int64]interface{}, len(h.unprotected))
	for k, v := range h.unprotected {
		out[k] = v
	}
	return out
}

// ProtectedMap returns a defensive copy of the protected bucket.
func (h *HeaderBucket) ProtectedMap() map[int64]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[int64]interface{}, len(h.protected))
	for k, v := range h.protected {
		out[k] = v
	}
	return out
}

// DoNotSendMap returns a defensive copy of the do-not-send bucket (salt,
// party info, and other AAD/KDF-only inputs that never reach the wire).
func (h *HeaderBucket) DoNotSendMap() map[int64]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[int64]interface{}, len(h.doNotSend))
	for k, v := range h.doNotSend {
		out[k] = v
	}
	return out
}

func (h *HeaderBucket) maps() map[Bucket]map[int64]interface{} {
	return map[Bucket]map[int64]interface{}{
		BucketProtected:   h.protected,
		BucketUnprotected: h.unprotected,
		BucketDoNotSend:   h.doNotSend,
	}
}

func (h *HeaderBucket) mapFor(bucket Bucket) (map[int64]interface{}, error) {
	switch bucket {
	case BucketProtected:
		return h.protected, nil
	case BucketUnprotected:
		return h.unprotected, nil
	case BucketDoNotSend:
		return h.doNotSend, nil
	default:
		return nil, fmt.Errorf("%w: invalid bucket %d", ErrInvalidParameter, bucket)
	}
}

// loadFromRaw populates protected/unprotected from decoded CBOR bytes, used
// by the Decrypt*/Verify* parsers and decodeRecipient. The protected bytes are retained verbatim in
// protectedBytes so re-encoding an unmodified message reproduces the exact
// same bytes (round-trip determinism, this package).
func (h *HeaderBucket) loadFromRaw(protectedBytes []byte, unprotected map[int64]interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.protected = make(map[int64]interface{})
	if len(protectedBytes) > 0 {
		if err := cbor.Unmarshal(protectedBytes, &h.protected); err != nil {
			return fmt.Errorf("%w: decode protected headers: %v", ErrCBOR, err)
		}
	}
	h.protectedBytes = append([]byte(nil), protectedBytes...)

	if unprotected == nil {
		unprotected = make(map[int64]interface{})
	}
	h.unprotected = unprotected
	h.doNotSend = make(map[int64]interface{})

	if v, ok := h.protected[HeaderLabelAlg]; ok {
		h.directFlag = h.isDirectLikeValue(v)
	} else if v, ok := h.unprotected[HeaderLabelAlg]; ok {
		h.directFlag = h.isDirectLikeValue(v)
	}
	return nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case uint:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%w: header value is not an integer (%T)", ErrUnknownAlgorithm, v)
	}
}
