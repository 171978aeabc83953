package cose_test

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/tradeverifyd/cose-engine/pkg/cose"
)

func hexBytes(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

// TestEncrypt0_AESCCM_SeedVector exercises spec scenario 1: AES-CCM-16-64-128
// Encrypt0 over a fixed plaintext/key/IV, checking the round-trip decrypt.
func TestEncrypt0_AESCCM_SeedVector(t *testing.T) {
	plaintext := []byte("This is the content.")
	key := hexBytes(t, "000102030405060708090A0B0C0D0E0F")
	iv := hexBytes(t, "A0A1A2A3A4A5A6A7A8A9AAABAC")

	m := cose.NewEncrypt0()
	if err := m.HeaderPut(cose.HeaderLabelAlg, int64(cose.AlgorithmAESCCM16_64_128), cose.BucketProtected); err != nil {
		t.Fatalf("put alg: %v", err)
	}
	if err := m.HeaderPut(cose.HeaderLabelIV, iv, cose.BucketUnprotected); err != nil {
		t.Fatalf("put iv: %v", err)
	}
	if err := m.SetPlaintext(plaintext); err != nil {
		t.Fatalf("set plaintext: %v", err)
	}

	encoded, err := m.Encrypt(key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	got, err := cose.DecryptEncrypt0(encoded, key, nil)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round-trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestEncrypt0_TamperedCiphertextFailsCryptoFail(t *testing.T) {
	key := hexBytes(t, "000102030405060708090A0B0C0D0E0F")
	iv := hexBytes(t, "A0A1A2A3A4A5A6A7A8A9AAABAC")

	m := cose.NewEncrypt0()
	if err := m.HeaderPut(cose.HeaderLabelAlg, int64(cose.AlgorithmAESCCM16_64_128), cose.BucketProtected); err != nil {
		t.Fatalf("put alg: %v", err)
	}
	if err := m.HeaderPut(cose.HeaderLabelIV, iv, cose.BucketUnprotected); err != nil {
		t.Fatalf("put iv: %v", err)
	}
	if err := m.SetPlaintext([]byte("This is the content.")); err != nil {
		t.Fatalf("set plaintext: %v", err)
	}
	encoded, err := m.Encrypt(key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	tampered := append([]byte(nil), encoded...)
	tampered[len(tampered)-1] ^= 0x01

	if _, err := cose.DecryptEncrypt0(tampered, key, nil); !errors.Is(err, cose.ErrCryptoFail) {
		t.Errorf("expected ErrCryptoFail on tampered ciphertext, got %v", err)
	}
}

// TestEnveloped_Direct exercises spec scenario 3: one Direct recipient
// whose symmetric key IS the CEK.
func TestEnveloped_Direct(t *testing.T) {
	plaintext := []byte("enveloped direct payload")
	cek := hexBytes(t, "00112233445566778899AABBCCDDEEFF")[:16]

	m := cose.NewEnveloped()
	if err := m.HeaderPut(cose.HeaderLabelAlg, int64(cose.AlgorithmA128GCM), cose.BucketProtected); err != nil {
		t.Fatalf("put alg: %v", err)
	}
	iv := make([]byte, 12)
	if err := m.HeaderPut(cose.HeaderLabelIV, iv, cose.BucketUnprotected); err != nil {
		t.Fatalf("put iv: %v", err)
	}
	if err := m.SetPlaintext(plaintext); err != nil {
		t.Fatalf("set plaintext: %v", err)
	}

	recipient, err := cose.BuildDirectRecipient()
	if err != nil {
		t.Fatalf("build direct recipient: %v", err)
	}
	m.AddRecipient(recipient)

	encoded, err := m.Encrypt(cek)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	key := cose.NewSymmetricKey(cek)
	engine := &cose.RecipientEngine{ResolveKey: func(*cose.HeaderBucket) (*cose.Key, error) { return key, nil }}
	got, err := cose.DecryptEnveloped(encoded, engine, nil)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round-trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestEnveloped_Direct_WrongLengthKeyFailsInvalidParameter(t *testing.T) {
	plaintext := []byte("enveloped direct payload")
	cek := make([]byte, 16)

	m := cose.NewEnveloped()
	if err := m.HeaderPut(cose.HeaderLabelAlg, int64(cose.AlgorithmA128GCM), cose.BucketProtected); err != nil {
		t.Fatalf("put alg: %v", err)
	}
	if err := m.HeaderPut(cose.HeaderLabelIV, make([]byte, 12), cose.BucketUnprotected); err != nil {
		t.Fatalf("put iv: %v", err)
	}
	if err := m.SetPlaintext(plaintext); err != nil {
		t.Fatalf("set plaintext: %v", err)
	}
	recipient, err := cose.BuildDirectRecipient()
	if err != nil {
		t.Fatalf("build direct recipient: %v", err)
	}
	m.AddRecipient(recipient)

	encoded, err := m.Encrypt(cek)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	wrongKey := cose.NewSymmetricKey(make([]byte, 10))
	engine := &cose.RecipientEngine{ResolveKey: func(*cose.HeaderBucket) (*cose.Key, error) { return wrongKey, nil }}
	if _, err := cose.DecryptEnveloped(encoded, engine, nil); !errors.Is(err, cose.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for wrong-length key, got %v", err)
	}
}

// TestEnveloped_AESKW exercises spec scenario 4: a single AES-KW-128
// recipient wrapping a randomly generated CEK.
func TestEnveloped_AESKW(t *testing.T) {
	plaintext := []byte("enveloped aes-kw payload")
	kek := hexBytes(t, "000102030405060708090A0B0C0D0E0F")

	m := cose.NewEnveloped()
	if err := m.HeaderPut(cose.HeaderLabelAlg, int64(cose.AlgorithmAESCCM16_64_128), cose.BucketProtected); err != nil {
		t.Fatalf("put alg: %v", err)
	}
	iv := hexBytes(t, "A0A1A2A3A4A5A6A7A8A9AAABAC")
	if err := m.HeaderPut(cose.HeaderLabelIV, iv, cose.BucketUnprotected); err != nil {
		t.Fatalf("put iv: %v", err)
	}
	if err := m.SetPlaintext(plaintext); err != nil {
		t.Fatalf("set plaintext: %v", err)
	}

	cek, err := cose.GenerateCEK(128)
	if err != nil {
		t.Fatalf("generate cek: %v", err)
	}
	recipient, err := cose.BuildKeyWrapRecipient(cose.AlgorithmA128KW, kek, cek)
	if err != nil {
		t.Fatalf("build key-wrap recipient: %v", err)
	}
	m.AddRecipient(recipient)

	encoded, err := m.Encrypt(cek)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	kekKey := cose.NewSymmetricKey(kek)
	engine := &cose.RecipientEngine{ResolveKey: func(*cose.HeaderBucket) (*cose.Key, error) { return kekKey, nil }}
	got, err := cose.DecryptEnveloped(encoded, engine, nil)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round-trip mismatch: got %q want %q", got, plaintext)
	}
}

// TestEnveloped_ECDHESHKDFKeyWrap exercises spec scenario 5: an
// ECDH-ES-HKDF-256 + AES-KW-128 recipient, checking the sender's ephemeral
// public key lands in the recipient's unprotected bucket.
func TestEnveloped_ECDHESHKDFKeyWrap(t *testing.T) {
	plaintext := []byte("ecdh-es enveloped payload")

	peerPriv, err := cose.GenerateKeyPair(cose.AlgorithmES256)
	if err != nil {
		t.Fatalf("generate peer key: %v", err)
	}
	peerKey, err := cose.KeyFromECDSAPrivateKey(peerPriv)
	if err != nil {
		t.Fatalf("key from ecdsa private: %v", err)
	}
	peerPublic := cose.NewEC2Key(peerKey.Crv, peerKey.X, peerKey.Y, nil)

	m := cose.NewEnveloped()
	if err := m.HeaderPut(cose.HeaderLabelAlg, int64(cose.AlgorithmA128GCM), cose.BucketProtected); err != nil {
		t.Fatalf("put alg: %v", err)
	}
	if err := m.HeaderPut(cose.HeaderLabelIV, make([]byte, 12), cose.BucketUnprotected); err != nil {
		t.Fatalf("put iv: %v", err)
	}
	if err := m.SetPlaintext(plaintext); err != nil {
		t.Fatalf("set plaintext: %v", err)
	}

	enclosing := cose.NewHeaderBucket()
	if err := enclosing.Put(cose.HeaderLabelAlg, int64(cose.AlgorithmA128GCM), cose.BucketProtected); err != nil {
		t.Fatalf("put alg on enclosing bucket: %v", err)
	}
	protected, err := enclosing.EncodeProtected()
	if err != nil {
		t.Fatalf("encode protected: %v", err)
	}
	cek, err := cose.GenerateCEK(128)
	if err != nil {
		t.Fatalf("generate cek: %v", err)
	}
	recipient, err := cose.BuildECDHKeyWrapRecipient(cose.AlgorithmECDHESA128KW, peerPublic, nil, protected, cek)
	if err != nil {
		t.Fatalf("build ecdh key-wrap recipient: %v", err)
	}

	if v, ok := recipient.HeaderGet(cose.HeaderLabelEphemeralKey, cose.BucketUnprotected); !ok || v == nil {
		t.Error("expected sender ephemeral key in recipient's unprotected bucket")
	}

	m.AddRecipient(recipient)
	encoded, err := m.Encrypt(cek)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	engine := &cose.RecipientEngine{ResolveKey: func(*cose.HeaderBucket) (*cose.Key, error) { return peerKey, nil }}
	got, err := cose.DecryptEnveloped(encoded, engine, nil)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round-trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestEnveloped_MixedDirectAndWrapRecipientsRejected(t *testing.T) {
	m := cose.NewEnveloped()
	if err := m.HeaderPut(cose.HeaderLabelAlg, int64(cose.AlgorithmA128GCM), cose.BucketProtected); err != nil {
		t.Fatalf("put alg: %v", err)
	}
	if err := m.HeaderPut(cose.HeaderLabelIV, make([]byte, 12), cose.BucketUnprotected); err != nil {
		t.Fatalf("put iv: %v", err)
	}
	if err := m.SetPlaintext([]byte("x")); err != nil {
		t.Fatalf("set plaintext: %v", err)
	}

	direct, err := cose.BuildDirectRecipient()
	if err != nil {
		t.Fatalf("build direct: %v", err)
	}
	wrapped, err := cose.BuildKeyWrapRecipient(cose.AlgorithmA128KW, hexBytes(t, "000102030405060708090A0B0C0D0E0F"), make([]byte, 16))
	if err != nil {
		t.Fatalf("build key-wrap: %v", err)
	}
	m.AddRecipient(direct)
	m.AddRecipient(wrapped)

	engine := &cose.RecipientEngine{}
	if _, err := engine.ResolveCEK(m.Recipients(), 128); !errors.Is(err, cose.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter mixing direct and wrap recipients, got %v", err)
	}

	if _, err := m.Encrypt(nil); !errors.Is(err, cose.ErrInvalidParameter) {
		t.Errorf("expected Encrypt to reject mixed direct/wrap recipients before building, got %v", err)
	}
}

// TestEncrypt0_UntaggedByDefaultTaggedOnRequest checks both directions of
// the tag/untagged contract: Encrypt0 emits a bare array unless SetTagged
// is called, and DecryptEncrypt0 accepts either form.
func TestEncrypt0_UntaggedByDefaultTaggedOnRequest(t *testing.T) {
	plaintext := []byte("tag or no tag, still decrypts")
	key := hexBytes(t, "000102030405060708090A0B0C0D0E0F")
	iv := hexBytes(t, "A0A1A2A3A4A5A6A7A8A9AAABAC")

	build := func(tagged bool) []byte {
		m := cose.NewEncrypt0()
		if err := m.HeaderPut(cose.HeaderLabelAlg, int64(cose.AlgorithmAESCCM16_64_128), cose.BucketProtected); err != nil {
			t.Fatalf("put alg: %v", err)
		}
		if err := m.HeaderPut(cose.HeaderLabelIV, iv, cose.BucketUnprotected); err != nil {
			t.Fatalf("put iv: %v", err)
		}
		if err := m.SetPlaintext(plaintext); err != nil {
			t.Fatalf("set plaintext: %v", err)
		}
		if tagged {
			if err := m.SetTagged(true); err != nil {
				t.Fatalf("set tagged: %v", err)
			}
		}
		encoded, err := m.Encrypt(key)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		return encoded
	}

	untagged := build(false)
	tagged := build(true)

	// A tagged COSE_Encrypt0_Tagged opens with the tag-16 major-type-6
	// prefix (0xd0); the untagged form starts directly with the three-
	// element array's major-type-4 prefix (0x83).
	if untagged[0] != 0x83 {
		t.Errorf("expected untagged encoding to start with array header 0x83, got 0x%02x", untagged[0])
	}
	if tagged[0] == untagged[0] {
		t.Error("expected tagged and untagged encodings to differ in their leading byte")
	}

	for _, enc := range [][]byte{untagged, tagged} {
		got, err := cose.DecryptEncrypt0(enc, key, nil)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Errorf("round-trip mismatch: got %q want %q", got, plaintext)
		}
	}
}
