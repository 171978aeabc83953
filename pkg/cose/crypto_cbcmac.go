package cose

import (
	"crypto/aes"
	"crypto/subtle"
	"fmt"
)

// aesCBCMAC computes a raw CBC-MAC over data (zero-padded to a block
// boundary here via padBlock) under an all-zero IV. Per the Open Question recorded
// in DESIGN.md, COSE's AES-CBC-MAC (RFC 9053 section 3.2 referencing the
// CBC-MAC construction in RFC 3610) always starts from a zero IV -- there is
// no per-message IV input for this family, unlike AES-CCM's nonce-derived
// B0. The full tag (TagBits) is truncated to the algorithm's tag size by
// the caller (computeMAC in mac_message.go).
func aesCBCMAC(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFail, err)
	}
	iv := make([]byte, aes.BlockSize)
	padded := padBlock(data)
	return cbcMACAbsorb(block, iv, padded), nil
}

// verifyTag compares a computed tag to an expected one in constant time,
// used by every MAC/MAC0/AEAD-adjacent verification path so a single
// timing-safe helper exists rather than one subtle.ConstantTimeCompare call
// site per variant.
func verifyTag(got, want []byte) bool {
	if len(got) != len(want) {
		return false
	}
	return subtle.ConstantTimeCompare(got, want) == 1
}
