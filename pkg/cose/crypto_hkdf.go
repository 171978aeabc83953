package cose

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/hkdf"
)

// hkdfHMAC runs ordinary RFC 5869 HKDF-Extract/Expand with an HMAC-SHA-256
// or HMAC-SHA-512 PRF, used by the Direct-HKDF-HMAC-SHA-{256,512} and every
// ECDH-*-HKDF-{256,512} recipient family . Grounded on
// golang.org/x/crypto/hkdf, the same package dc4eu-vc and
// kgiusti-go-fdo-server pull in for KDF needs (DESIGN.md).
func hkdfHMAC(hashBits int, secret, salt, info []byte, length int) ([]byte, error) {
	var h func() hash.Hash
	switch hashBits {
	case 256:
		h = sha256.New
	case 512:
		h = sha512.New
	default:
		return nil, fmt.Errorf("%w: unsupported HKDF hash size %d", ErrInvalidParameter, hashBits)
	}

	reader := hkdf.New(h, secret, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, fmt.Errorf("%w: HKDF expand: %v", ErrCryptoFail, err)
	}
	return out, nil
}

// hkdfAES runs the same RFC 5869 two-step extract/expand construction but
// with AES-CMAC standing in for HMAC as the PRF, per RFC 9053 section 5.3's
// Direct-HKDF-AES-128/256 definition. golang.org/x/crypto/hkdf is generic
// over hash.Hash, not over an arbitrary PRF, so the two HKDF steps are
// reimplemented here directly atop aesCMAC (DESIGN.md).
//
// AES-CMAC's output is always one 16-byte block regardless of the AES key
// size in use, so it cannot double as a 256-bit key for the expand step of
// the A256 variant the way an HMAC digest can for ordinary HKDF. This
// implementation resolves that by keeping salt (sized to keyBits/8, zero-filled if absent)
// as the CMAC key throughout both extract and expand, folding the extract
// output PRK into the expand step's message input instead of its key --
// the role RFC 5869's "PRK" plays is preserved (it gates every expand
// block), only its position moves from key to message.
func hkdfAES(keyBits int, secret, salt, info []byte, length int) ([]byte, error) {
	keyLen := keyBits / 8
	if salt == nil {
		salt = make([]byte, keyLen)
	}
	if len(salt) != keyLen {
		return nil, fmt.Errorf("%w: AES-HKDF salt must be %d bytes, got %d", ErrInvalidParameter, keyLen, len(salt))
	}

	prk, err := aesCMAC(salt, secret)
	if err != nil {
		return nil, err
	}

	var out []byte
	var prev []byte
	for counter := byte(1); len(out) < length; counter++ {
		block := append(append([]byte(nil), prev...), prk...)
		block = append(block, info...)
		block = append(block, counter)
		t, err := aesCMAC(salt, block)
		if err != nil {
			return nil, err
		}
		out = append(out, t...)
		prev = t
	}
	return out[:length], nil
}
