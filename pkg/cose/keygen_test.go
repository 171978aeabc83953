package cose_test

import (
	"crypto/elliptic"
	"testing"

	"github.com/tradeverifyd/cose-engine/pkg/cose"
)

func TestGenerateKeyPair(t *testing.T) {
	t.Run("generates ES256 key pair", func(t *testing.T) {
		priv, err := cose.GenerateKeyPair(cose.AlgorithmES256)
		if err != nil {
			t.Fatalf("failed to generate ES256 key pair: %v", err)
		}
		if priv.Curve != elliptic.P256() {
			t.Errorf("expected P-256 curve, got %v", priv.Curve)
		}
	})

	t.Run("generates ES384 key pair", func(t *testing.T) {
		priv, err := cose.GenerateKeyPair(cose.AlgorithmES384)
		if err != nil {
			t.Fatalf("failed to generate ES384 key pair: %v", err)
		}
		if priv.Curve != elliptic.P384() {
			t.Errorf("expected P-384 curve, got %v", priv.Curve)
		}
	})

	t.Run("generates ES512 key pair", func(t *testing.T) {
		priv, err := cose.GenerateKeyPair(cose.AlgorithmES512)
		if err != nil {
			t.Fatalf("failed to generate ES512 key pair: %v", err)
		}
		if priv.Curve != elliptic.P521() {
			t.Errorf("expected P-521 curve, got %v", priv.Curve)
		}
	})

	t.Run("generates different keys each time", func(t *testing.T) {
		priv1, err := cose.GenerateKeyPair(cose.AlgorithmES256)
		if err != nil {
			t.Fatalf("failed to generate key pair 1: %v", err)
		}
		priv2, err := cose.GenerateKeyPair(cose.AlgorithmES256)
		if err != nil {
			t.Fatalf("failed to generate key pair 2: %v", err)
		}
		if priv1.D.Cmp(priv2.D) == 0 {
			t.Error("generated identical private keys")
		}
	})

	t.Run("rejects non-EC algorithm", func(t *testing.T) {
		_, err := cose.GenerateKeyPair(cose.AlgorithmEdDSA)
		if err == nil {
			t.Error("expected error for EdDSA (no associated elliptic.Curve)")
		}
	})
}

func TestGenerateSymmetricKey(t *testing.T) {
	t.Run("generates a 256-bit key", func(t *testing.T) {
		k, err := cose.GenerateSymmetricKey(256)
		if err != nil {
			t.Fatalf("failed to generate symmetric key: %v", err)
		}
		kb, err := k.SymmetricKeyBytes()
		if err != nil {
			t.Fatalf("unexpected error reading key bytes: %v", err)
		}
		if len(kb) != 32 {
			t.Errorf("expected 32-byte key, got %d", len(kb))
		}
	})

	t.Run("generates different keys each time", func(t *testing.T) {
		k1, err := cose.GenerateSymmetricKey(128)
		if err != nil {
			t.Fatalf("failed to generate key 1: %v", err)
		}
		k2, err := cose.GenerateSymmetricKey(128)
		if err != nil {
			t.Fatalf("failed to generate key 2: %v", err)
		}
		b1, _ := k1.SymmetricKeyBytes()
		b2, _ := k2.SymmetricKeyBytes()
		if string(b1) == string(b2) {
			t.Error("generated identical symmetric keys")
		}
	})
}

func TestECDSAKeyBridging(t *testing.T) {
	t.Run("round-trips a private key through the unified Key type", func(t *testing.T) {
		priv, err := cose.GenerateKeyPair(cose.AlgorithmES256)
		if err != nil {
			t.Fatalf("failed to generate key pair: %v", err)
		}

		k, err := cose.KeyFromECDSAPrivateKey(priv)
		if err != nil {
			t.Fatalf("failed to convert to unified Key: %v", err)
		}
		if k.Kty != cose.KeyTypeEC2 {
			t.Errorf("expected KeyTypeEC2, got %d", k.Kty)
		}
		if k.Crv != cose.CurveP256 {
			t.Errorf("expected CurveP256, got %d", k.Crv)
		}

		recovered, err := cose.ECDSAPrivateKeyFromKey(k)
		if err != nil {
			t.Fatalf("failed to recover private key: %v", err)
		}
		if recovered.D.Cmp(priv.D) != 0 {
			t.Error("recovered private key D does not match original")
		}
	})

	t.Run("round-trips a public key through the unified Key type", func(t *testing.T) {
		priv, err := cose.GenerateKeyPair(cose.AlgorithmES384)
		if err != nil {
			t.Fatalf("failed to generate key pair: %v", err)
		}

		k, err := cose.KeyFromECDSAPublicKey(&priv.PublicKey)
		if err != nil {
			t.Fatalf("failed to convert to unified Key: %v", err)
		}
		if k.Crv != cose.CurveP384 {
			t.Errorf("expected CurveP384, got %d", k.Crv)
		}

		recovered, err := cose.ECDSAPublicKeyFromKey(k)
		if err != nil {
			t.Fatalf("failed to recover public key: %v", err)
		}
		if recovered.X.Cmp(priv.PublicKey.X) != 0 || recovered.Y.Cmp(priv.PublicKey.Y) != 0 {
			t.Error("recovered public key coordinates do not match original")
		}
	})

	t.Run("rejects a symmetric key for ECDSA recovery", func(t *testing.T) {
		k := cose.NewSymmetricKey([]byte("0123456789abcdef"))
		if _, err := cose.ECDSAPrivateKeyFromKey(k); err == nil {
			t.Error("expected error recovering an ECDSA private key from a symmetric COSE_Key")
		}
		if _, err := cose.ECDSAPublicKeyFromKey(k); err == nil {
			t.Error("expected error recovering an ECDSA public key from a symmetric COSE_Key")
		}
	})

	t.Run("rejects an unsupported curve", func(t *testing.T) {
		k := cose.NewEC2Key(99, []byte{1}, []byte{2}, []byte{3})
		if _, err := cose.ECDSAPrivateKeyFromKey(k); err == nil {
			t.Error("expected error for unsupported curve identifier")
		}
	})
}
