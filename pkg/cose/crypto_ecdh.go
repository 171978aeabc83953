package cose

import (
	"crypto/ecdh"
	"crypto/elliptic"
	"fmt"
)

// ecdhCurve maps a COSE EC2 crv identifier to the standard library's
// crypto/ecdh curve, used by every ECDH-ES/SS recipient family. crypto/ecdh
// (added in Go 1.20) gives constant-time scalar multiplication without
// reaching for a third-party curve package.
func ecdhCurve(crv int64) (ecdh.Curve, error) {
	switch crv {
	case CurveP256:
		return ecdh.P256(), nil
	case CurveP384:
		return ecdh.P384(), nil
	case CurveP521:
		return ecdh.P521(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported ECDH curve %d", ErrInvalidParameter, crv)
	}
}

// ecdhSharedSecret performs a one-sided ECDH agreement: privateKey (the
// recipient's static key, or the sender's freshly minted ephemeral key)
// against peerPublic (the other party's static or ephemeral EC2 key),
// yielding the raw Z value RFC 9053 section 6.3 feeds into the KDF.
func ecdhSharedSecret(privateKey *Key, peerPublic *Key) ([]byte, error) {
	if privateKey == nil || peerPublic == nil || privateKey.Kty != KeyTypeEC2 || peerPublic.Kty != KeyTypeEC2 {
		return nil, fmt.Errorf("%w: ECDH requires two EC2 keys", ErrInvalidParameter)
	}
	if privateKey.Crv != peerPublic.Crv {
		return nil, fmt.Errorf("%w: ECDH curve mismatch", ErrInvalidParameter)
	}

	curve, err := ecdhCurve(privateKey.Crv)
	if err != nil {
		return nil, err
	}

	priv, err := curve.NewPrivateKey(privateKey.D)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ECDH private key: %v", ErrInvalidParameter, err)
	}

	pubBytes := ecdhUncompressedPoint(peerPublic)
	pub, err := curve.NewPublicKey(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ECDH public key: %v", ErrInvalidParameter, err)
	}

	z, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: ECDH agreement failed: %v", ErrCryptoFail, err)
	}
	return z, nil
}

// ecdhUncompressedPoint renders an EC2 COSE_Key's (x, y) as the SEC1
// uncompressed point format crypto/ecdh.Curve.NewPublicKey expects.
func ecdhUncompressedPoint(k *Key) []byte {
	out := make([]byte, 1+len(k.X)+len(k.Y))
	out[0] = 0x04
	copy(out[1:], k.X)
	copy(out[1+len(k.X):], k.Y)
	return out
}

// generateEphemeralKey mints a fresh ephemeral EC2 key pair on crv, used by
// the sender side of every ECDH-ES family ("the sender
// generates a fresh ephemeral key per message").
func generateEphemeralKey(crv int64) (*Key, error) {
	curve, err := ecdhCurve(crv)
	if err != nil {
		return nil, err
	}
	priv, err := curve.GenerateKey(randReader())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFail, err)
	}
	pub := priv.PublicKey().Bytes()
	// pub is the uncompressed SEC1 point 0x04 || X || Y; coordinate size is
	// fixed per curve, so elliptic.P256().Params().BitSize families give us
	// the split point without re-parsing ASN.1.
	size := (ellipticBitSize(crv) + 7) / 8
	x := pub[1 : 1+size]
	y := pub[1+size : 1+2*size]
	return &Key{Kty: KeyTypeEC2, Crv: crv, X: append([]byte(nil), x...), Y: append([]byte(nil), y...), D: priv.Bytes()}, nil
}

func ellipticBitSize(crv int64) int {
	switch crv {
	case CurveP256:
		return elliptic.P256().Params().BitSize
	case CurveP384:
		return elliptic.P384().Params().BitSize
	case CurveP521:
		return elliptic.P521().Params().BitSize
	default:
		return 0
	}
}
