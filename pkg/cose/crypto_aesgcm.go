package cose

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// aesGCMSeal implements the A128GCM/A192GCM/A256GCM family: a thin wrapper
// over crypto/cipher's GCM, since the standard library already provides a
// constant-time, well-reviewed implementation (see DESIGN.md).
func aesGCMSeal(key, nonce, plaintext, aad []byte) ([]byte, error) {
	aead, err := newAESGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: GCM nonce must be %d bytes, got %d", ErrInvalidParameter, aead.NonceSize(), len(nonce))
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

func aesGCMOpen(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	aead, err := newAESGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: GCM nonce must be %d bytes, got %d", ErrInvalidParameter, aead.NonceSize(), len(nonce))
	}
	pt, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: GCM authentication failed", ErrCryptoFail)
	}
	return pt, nil
}

func newAESGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFail, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFail, err)
	}
	return aead, nil
}
