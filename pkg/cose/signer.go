// Package cose provides a COSE (RFC 9052/9053) message construction,
// parsing, and cryptographic-processing engine.
package cose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"math/big"
)

// Signer produces a raw signature over an already-built Sig_structure (or
// Signature1 structure); it never sees headers or payload directly, which
// keeps key material and header encoding decoupled and leaves room for an
// HSM-backed implementation later.
type Signer interface {
	Sign(data []byte) ([]byte, error)
	Algorithm() int64
}

// Verifier validates a raw signature over an already-built structure.
type Verifier interface {
	Verify(data, signature []byte) (bool, error)
}

// ecdsaSigner implements Signer for ES256/ES384/ES512.
type ecdsaSigner struct {
	privateKey *ecdsa.PrivateKey
	alg        int64
	hash       crypto.Hash
	coordSize  int
}

// NewES256Signer creates a signer for ES256 (ECDSA P-256 + SHA-256).
func NewES256Signer(privateKey *ecdsa.PrivateKey) (Signer, error) {
	return newECDSASigner(privateKey, AlgorithmES256, crypto.SHA256, 32)
}

// NewES384Signer creates a signer for ES384 (ECDSA P-384 + SHA-384).
func NewES384Signer(privateKey *ecdsa.PrivateKey) (Signer, error) {
	return newECDSASigner(privateKey, AlgorithmES384, crypto.SHA384, 48)
}

// NewES512Signer creates a signer for ES512 (ECDSA P-521 + SHA-512).
func NewES512Signer(privateKey *ecdsa.PrivateKey) (Signer, error) {
	return newECDSASigner(privateKey, AlgorithmES512, crypto.SHA512, 66)
}

func newECDSASigner(privateKey *ecdsa.PrivateKey, alg int64, hash crypto.Hash, coordSize int) (Signer, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("%w: private key is nil", ErrInvalidParameter)
	}
	return &ecdsaSigner{privateKey: privateKey, alg: alg, hash: hash, coordSize: coordSize}, nil
}

func (s *ecdsaSigner) Algorithm() int64 { return s.alg }

// Sign returns the signature in IEEE P1363 format (r || s), the fixed-size
// encoding RFC 9053 section 2.1 requires (never ASN.1 DER).
func (s *ecdsaSigner) Sign(data []byte) ([]byte, error) {
	hashed, err := hashBytes(data, s.hash)
	if err != nil {
		return nil, err
	}
	r, sigS, err := ecdsa.Sign(rand.Reader, s.privateKey, hashed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFail, err)
	}

	signature := make([]byte, 2*s.coordSize)
	rBytes := r.Bytes()
	sBytes := sigS.Bytes()
	copy(signature[s.coordSize-len(rBytes):s.coordSize], rBytes)
	copy(signature[2*s.coordSize-len(sBytes):], sBytes)
	return signature, nil
}

// ecdsaVerifier implements Verifier for ES256/ES384/ES512.
type ecdsaVerifier struct {
	publicKey *ecdsa.PublicKey
	hash      crypto.Hash
	coordSize int
}

// NewES256Verifier creates a verifier for ES256.
func NewES256Verifier(publicKey *ecdsa.PublicKey) (Verifier, error) {
	return newECDSAVerifier(publicKey, crypto.SHA256, 32)
}

// NewES384Verifier creates a verifier for ES384.
func NewES384Verifier(publicKey *ecdsa.PublicKey) (Verifier, error) {
	return newECDSAVerifier(publicKey, crypto.SHA384, 48)
}

// NewES512Verifier creates a verifier for ES512.
func NewES512Verifier(publicKey *ecdsa.PublicKey) (Verifier, error) {
	return newECDSAVerifier(publicKey, crypto.SHA512, 66)
}

func newECDSAVerifier(publicKey *ecdsa.PublicKey, hash crypto.Hash, coordSize int) (Verifier, error) {
	if publicKey == nil {
		return nil, fmt.Errorf("%w: public key is nil", ErrInvalidParameter)
	}
	return &ecdsaVerifier{publicKey: publicKey, hash: hash, coordSize: coordSize}, nil
}

func (v *ecdsaVerifier) Verify(data, signature []byte) (bool, error) {
	if len(signature) != 2*v.coordSize {
		return false, fmt.Errorf("%w: expected %d-byte signature, got %d", ErrInvalidParameter, 2*v.coordSize, len(signature))
	}
	hashed, err := hashBytes(data, v.hash)
	if err != nil {
		return false, err
	}
	r := new(big.Int).SetBytes(signature[:v.coordSize])
	s := new(big.Int).SetBytes(signature[v.coordSize:])
	return ecdsa.Verify(v.publicKey, hashed, r, s), nil
}

// eddsaSigner implements Signer for EdDSA (Ed25519).
type eddsaSigner struct {
	privateKey ed25519.PrivateKey
}

// NewEdDSASigner creates a signer for EdDSA.
func NewEdDSASigner(privateKey ed25519.PrivateKey) (Signer, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: invalid Ed25519 private key size", ErrInvalidParameter)
	}
	return &eddsaSigner{privateKey: privateKey}, nil
}

func (s *eddsaSigner) Algorithm() int64 { return AlgorithmEdDSA }

func (s *eddsaSigner) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(s.privateKey, data), nil
}

// eddsaVerifier implements Verifier for EdDSA.
type eddsaVerifier struct {
	publicKey ed25519.PublicKey
}

// NewEdDSAVerifier creates a verifier for EdDSA.
func NewEdDSAVerifier(publicKey ed25519.PublicKey) (Verifier, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: invalid Ed25519 public key size", ErrInvalidParameter)
	}
	return &eddsaVerifier{publicKey: publicKey}, nil
}

func (v *eddsaVerifier) Verify(data, signature []byte) (bool, error) {
	return ed25519.Verify(v.publicKey, data, signature), nil
}

func hashBytes(data []byte, hashAlg crypto.Hash) ([]byte, error) {
	if !hashAlg.Available() {
		return nil, fmt.Errorf("%w: hash algorithm not available", ErrCryptoFail)
	}
	h := hashAlg.New()
	h.Write(data)
	return h.Sum(nil), nil
}

// curveFor returns the elliptic.Curve backing a given signing algorithm,
// used by keygen.go when minting new EC key pairs.
func curveFor(alg int64) (elliptic.Curve, error) {
	switch alg {
	case AlgorithmES256:
		return elliptic.P256(), nil
	case AlgorithmES384:
		return elliptic.P384(), nil
	case AlgorithmES512:
		return elliptic.P521(), nil
	default:
		return nil, fmt.Errorf("%w: algorithm %d has no associated EC curve", ErrUnknownAlgorithm, alg)
	}
}
