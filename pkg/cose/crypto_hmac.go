package cose

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
)

// hmacDigest computes a full HMAC digest for the HMAC-256/64,
// HMAC-256/256, HMAC-384/384, and HMAC-512/512 MAC algorithms, using
// crypto/hmac the same way the broader Go ecosystem does for this
// primitive.
func hmacDigest(hashBits int, key, message []byte) ([]byte, error) {
	var h func() hash.Hash
	switch hashBits {
	case 256:
		h = sha256.New
	case 384:
		h = sha512.New384
	case 512:
		h = sha512.New
	default:
		return nil, fmt.Errorf("%w: unsupported HMAC hash size %d", ErrInvalidParameter, hashBits)
	}
	mac := hmac.New(h, key)
	mac.Write(message)
	return mac.Sum(nil), nil
}
