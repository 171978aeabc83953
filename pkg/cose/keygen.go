// Package cose provides COSE (RFC 9052/9053) message construction,
// parsing, and cryptographic processing, including ECDSA key generation
// and COSE_Key conversions.
package cose

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// GenerateKeyPair generates a new ECDSA key pair on the curve associated
// with alg (ES256/ES384/ES512), the engine's one way of minting EC signing
// keys: everything downstream reads the curve from the algorithm registry
// rather than from a caller-supplied curve value.
func GenerateKeyPair(alg int64) (*ecdsa.PrivateKey, error) {
	curve, err := curveFor(alg)
	if err != nil {
		return nil, err
	}
	privateKey, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair for algorithm %d: %w", alg, err)
	}
	return privateKey, nil
}

// GenerateSymmetricKey generates a random symmetric COSE_Key of the given
// bit length, for use as a MAC key, CEK, or AES-KW key-encryption key.
func GenerateSymmetricKey(bits int) (*Key, error) {
	k := make([]byte, (bits+7)/8)
	if _, err := io.ReadFull(randReader(), k); err != nil {
		return nil, fmt.Errorf("failed to generate symmetric key: %w", err)
	}
	return NewSymmetricKey(k), nil
}

// crvForCurve maps a stdlib elliptic.Curve back to its COSE curve
// identifier, the inverse of the mapping curveFor and ellipticCurveForCrv
// apply elsewhere in the engine.
func crvForCurve(curve elliptic.Curve) (int64, error) {
	switch curve {
	case elliptic.P256():
		return CurveP256, nil
	case elliptic.P384():
		return CurveP384, nil
	case elliptic.P521():
		return CurveP521, nil
	default:
		return 0, fmt.Errorf("%w: unsupported curve", ErrInvalidParameter)
	}
}

// KeyFromECDSAPrivateKey converts a stdlib ECDSA private key into the
// engine's unified COSE_Key representation (the integer-keyed EC2 map, see
// key.go), coordinate-padded to the curve's field size.
func KeyFromECDSAPrivateKey(privateKey *ecdsa.PrivateKey) (*Key, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("%w: private key is nil", ErrInvalidParameter)
	}
	crv, err := crvForCurve(privateKey.Curve)
	if err != nil {
		return nil, err
	}
	size := (privateKey.Curve.Params().BitSize + 7) / 8
	x := padLeft(privateKey.X.Bytes(), size)
	y := padLeft(privateKey.Y.Bytes(), size)
	d := padLeft(privateKey.D.Bytes(), size)
	return NewEC2Key(crv, x, y, d), nil
}

// KeyFromECDSAPublicKey converts a stdlib ECDSA public key into the
// engine's unified COSE_Key representation.
func KeyFromECDSAPublicKey(publicKey *ecdsa.PublicKey) (*Key, error) {
	if publicKey == nil {
		return nil, fmt.Errorf("%w: public key is nil", ErrInvalidParameter)
	}
	crv, err := crvForCurve(publicKey.Curve)
	if err != nil {
		return nil, err
	}
	size := (publicKey.Curve.Params().BitSize + 7) / 8
	x := padLeft(publicKey.X.Bytes(), size)
	y := padLeft(publicKey.Y.Bytes(), size)
	return NewEC2Key(crv, x, y, nil), nil
}

// ECDSAPrivateKeyFromKey recovers a stdlib ECDSA private key from an EC2
// COSE_Key (the engine's own integer-keyed representation -- it never
// interprets a textual key representation, see key.go), the inverse of
// KeyFromECDSAPrivateKey.
func ECDSAPrivateKeyFromKey(k *Key) (*ecdsa.PrivateKey, error) {
	if k == nil || k.Kty != KeyTypeEC2 || len(k.D) == 0 {
		return nil, fmt.Errorf("%w: not an EC2 private key", ErrInvalidParameter)
	}
	curve, err := ellipticCurveForCrv(k.Crv)
	if err != nil {
		return nil, err
	}
	priv := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: curve,
			X:     new(big.Int).SetBytes(k.X),
			Y:     new(big.Int).SetBytes(k.Y),
		},
		D: new(big.Int).SetBytes(k.D),
	}
	if !curve.IsOnCurve(priv.X, priv.Y) {
		return nil, fmt.Errorf("%w: public key point is not on curve", ErrInvalidParameter)
	}
	return priv, nil
}

// ECDSAPublicKeyFromKey recovers a stdlib ECDSA public key from an EC2
// COSE_Key.
func ECDSAPublicKeyFromKey(k *Key) (*ecdsa.PublicKey, error) {
	if k == nil || k.Kty != KeyTypeEC2 {
		return nil, fmt.Errorf("%w: not an EC2 key", ErrInvalidParameter)
	}
	curve, err := ellipticCurveForCrv(k.Crv)
	if err != nil {
		return nil, err
	}
	pub := &ecdsa.PublicKey{Curve: curve, X: new(big.Int).SetBytes(k.X), Y: new(big.Int).SetBytes(k.Y)}
	if !curve.IsOnCurve(pub.X, pub.Y) {
		return nil, fmt.Errorf("%w: public key point is not on curve", ErrInvalidParameter)
	}
	return pub, nil
}

// ellipticCurveForCrv maps a COSE curve identifier to its stdlib
// elliptic.Curve, the counterpart to crvForCurve.
func ellipticCurveForCrv(crv int64) (elliptic.Curve, error) {
	switch crv {
	case CurveP256:
		return elliptic.P256(), nil
	case CurveP384:
		return elliptic.P384(), nil
	case CurveP521:
		return elliptic.P521(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported curve %d", ErrInvalidParameter, crv)
	}
}

// padLeft pads a byte slice to the left with zeros to reach the target length.
func padLeft(data []byte, length int) []byte {
	if len(data) >= length {
		return data
	}
	padded := make([]byte, length)
	copy(padded[length-len(data):], data)
	return padded
}
