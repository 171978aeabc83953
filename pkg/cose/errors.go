package cose

import "errors"

// Error taxonomy: every failure path in this package wraps one of these
// sentinels so callers can recover the failure category with errors.Is,
// the same fmt.Errorf("...: %w", ...) pattern keygen.go uses for its own
// errors.
var (
	// ErrInvalidParameter covers malformed header buckets, key/CEK length
	// mismatches, and recipient-tree shapes the engine rejects structurally.
	ErrInvalidParameter = errors.New("cose: invalid parameter")

	// ErrUnknownAlgorithm is returned for any alg that is absent from the
	// registry or carried as a text value (this engine never resolves
	// string algorithm identifiers).
	ErrUnknownAlgorithm = errors.New("cose: unknown algorithm")

	// ErrNoRecipientFound is returned when decrypt/verify traversal
	// exhausts every recipient or signer without success.
	ErrNoRecipientFound = errors.New("cose: no recipient found")

	// ErrCBOR covers codec-level decode failures: wrong major type, wrong
	// array length for the message variant, truncated input.
	ErrCBOR = errors.New("cose: cbor error")

	// ErrCryptoFail covers AEAD tag mismatch, MAC mismatch, and signature
	// verification failure. It is indistinguishable from a recipient-specific
	// key error except through which call returned it.
	ErrCryptoFail = errors.New("cose: cryptographic operation failed")

	// ErrOutOfMemory is reserved for allocation-failure reporting; ordinary
	// Go allocation failures panic rather than returning an error, so this
	// is only surfaced by callers that impose their own memory budget.
	ErrOutOfMemory = errors.New("cose: out of memory")
)

// ErrNotFound is a get-only miss signal distinct from the structural
// taxonomy above: HeaderBucket.GetStrict returns it on a miss, while
// HeaderBucket.Get reports a miss through its boolean result instead.
var ErrNotFound = errors.New("cose: header not found")
