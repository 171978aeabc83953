package cose

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// aesCMAC implements RFC 4493 AES-CMAC, the PRF the Direct-HKDF-AES-128/256
// recipient family substitutes for HMAC in an otherwise
// ordinary RFC 5869 HKDF extract/expand. golang.org/x/crypto has no CMAC
// package and no suitable third-party one is available, so this is built
// directly on crypto/aes (DESIGN.md).
func aesCMAC(key, message []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFail, err)
	}

	k1, k2 := cmacSubkeys(block)

	n := (len(message) + aes.BlockSize - 1) / aes.BlockSize
	var lastBlock []byte
	var complete bool
	if n == 0 {
		n = 1
		complete = false
	} else {
		complete = len(message)%aes.BlockSize == 0
	}

	if complete {
		lastBlock = xorBlock(message[(n-1)*aes.BlockSize:], k1)
	} else {
		tail := message[(n-1)*aes.BlockSize:]
		if n == 1 && len(message) == 0 {
			tail = nil
		}
		padded := cmacPad(tail)
		lastBlock = xorBlock(padded, k2)
	}

	iv := make([]byte, aes.BlockSize)
	cbc := cipher.NewCBCEncrypter(block, iv)
	mac := make([]byte, aes.BlockSize)
	if n > 1 {
		for i := 0; i < n-1; i++ {
			chunk := message[i*aes.BlockSize : (i+1)*aes.BlockSize]
			cbc.CryptBlocks(mac, chunk)
		}
	}
	cbc.CryptBlocks(mac, lastBlock)
	return mac, nil
}

func cmacPad(b []byte) []byte {
	out := make([]byte, aes.BlockSize)
	copy(out, b)
	out[len(b)] = 0x80
	return out
}

func xorBlock(b, k []byte) []byte {
	out := make([]byte, aes.BlockSize)
	for i := 0; i < aes.BlockSize; i++ {
		out[i] = b[i] ^ k[i]
	}
	return out
}

func cmacSubkeys(block cipher.Block) (k1, k2 []byte) {
	zero := make([]byte, aes.BlockSize)
	l := make([]byte, aes.BlockSize)
	block.Encrypt(l, zero)

	k1 = cmacShiftXorRb(l)
	k2 = cmacShiftXorRb(k1)
	return k1, k2
}

// cmacShiftXorRb left-shifts b by one bit, XORing in the 0x87 reduction
// polynomial constant if the shifted-out bit was 1 (RFC 4493 section 2.3).
func cmacShiftXorRb(b []byte) []byte {
	out := make([]byte, len(b))
	var carry byte
	for i := len(b) - 1; i >= 0; i-- {
		out[i] = (b[i] << 1) | carry
		carry = b[i] >> 7
	}
	if b[0]&0x80 != 0 {
		out[len(out)-1] ^= 0x87
	}
	return out
}
