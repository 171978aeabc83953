package cose

import (
	"bytes"
	"crypto"
	"fmt"
	"io"
	"os"
)

// Hash Algorithm Constants (for COSE Hash Envelope)
const (
	HashAlgorithmSHA256 = -16 // SHA-256
	HashAlgorithmSHA384 = -43 // SHA-384
	HashAlgorithmSHA512 = -44 // SHA-512
)

// HashEnvelope represents a COSE hash envelope structure
// Used for signing large files by signing their hash instead of the full content
type HashEnvelope struct {
	PayloadHash         []byte // Hash of the payload
	PayloadHashAlg      int    // Hash algorithm identifier
	PreimageContentType string // Content type of original payload (optional)
	PayloadLocation     string // Location of original payload (optional)
}

// HashEnvelopeOptions holds options for creating hash envelopes
type HashEnvelopeOptions struct {
	ContentType   string // Content type of the artifact
	Location      string // Location/URL of the artifact
	HashAlgorithm int    // Hash algorithm to use (default: SHA-256)
}

// HashEnvelopeVerificationResult holds the result of hash envelope verification
type HashEnvelopeVerificationResult struct {
	SignatureValid bool // Whether the COSE signature is valid
	HashValid      bool // Whether the hash matches the artifact
}

// CreateHashEnvelope creates a hash envelope from data
func CreateHashEnvelope(data []byte, options HashEnvelopeOptions) (*HashEnvelope, error) {
	hashAlgorithm := options.HashAlgorithm
	if hashAlgorithm == 0 {
		hashAlgorithm = HashAlgorithmSHA256
	}

	hash, err := HashData(data, hashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("failed to hash data: %w", err)
	}

	return &HashEnvelope{
		PayloadHash:         hash,
		PayloadHashAlg:      hashAlgorithm,
		PreimageContentType: options.ContentType,
		PayloadLocation:     options.Location,
	}, nil
}

// HashData hashes data using the specified COSE hash algorithm
func HashData(data []byte, algorithm int) ([]byte, error) {
	hashAlg, err := getCryptoHashAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}

	if !hashAlg.Available() {
		return nil, fmt.Errorf("hash algorithm not available")
	}

	h := hashAlg.New()
	h.Write(data)
	return h.Sum(nil), nil
}

// StreamHashFromFile computes hash of a file using streaming I/O
// Efficient for large files
func StreamHashFromFile(filePath string, algorithm int) ([]byte, error) {
	hashAlg, err := getCryptoHashAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}

	if !hashAlg.Available() {
		return nil, fmt.Errorf("hash algorithm not available")
	}

	// Open file
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	// Create hash
	h := hashAlg.New()

	// Copy file to hash (streaming)
	if _, err := io.Copy(h, file); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return h.Sum(nil), nil
}

// ValidateHashEnvelope validates that the hash envelope matches the provided data
func ValidateHashEnvelope(envelope *HashEnvelope, data []byte) (bool, error) {
	computedHash, err := HashData(data, envelope.PayloadHashAlg)
	if err != nil {
		return false, fmt.Errorf("failed to compute hash: %w", err)
	}

	return bytes.Equal(computedHash, envelope.PayloadHash), nil
}

// Hash envelope header labels (draft-ietf-cose-hash-envelope): where in a
// Sign0 message's protected bucket the hash-envelope parameters live.
const (
	HeaderLabelPayloadHashAlg             = 258
	HeaderLabelPayloadPreimageContentType = 259
	HeaderLabelPayloadLocation            = 260
)

// SignHashEnvelope computes the hash of artifact, builds a Sign0 message
// whose payload is that hash rather than the artifact itself, and signs it
// -- the standard technique for signing large content without holding it
// all in memory at signing time.
func SignHashEnvelope(
	artifact []byte,
	options HashEnvelopeOptions,
	signer Signer,
	cwtClaims CWTClaimsSet,
	detached bool,
) ([]byte, error) {
	envelope, err := CreateHashEnvelope(artifact, options)
	if err != nil {
		return nil, fmt.Errorf("create hash envelope: %w", err)
	}

	m := NewSign0()
	if err := m.HeaderPut(HeaderLabelAlg, signer.Algorithm(), BucketProtected); err != nil {
		return nil, err
	}
	if err := m.HeaderPut(HeaderLabelPayloadHashAlg, int64(envelope.PayloadHashAlg), BucketProtected); err != nil {
		return nil, err
	}
	if envelope.PreimageContentType != "" {
		if err := m.HeaderPut(HeaderLabelPayloadPreimageContentType, envelope.PreimageContentType, BucketProtected); err != nil {
			return nil, err
		}
	}
	if envelope.PayloadLocation != "" {
		if err := m.HeaderPut(HeaderLabelPayloadLocation, envelope.PayloadLocation, BucketProtected); err != nil {
			return nil, err
		}
	}
	if len(cwtClaims) > 0 {
		if err := m.HeaderPut(HeaderLabelCWTClaims, cwtClaims, BucketProtected); err != nil {
			return nil, err
		}
	}

	if err := m.SetPayload(envelope.PayloadHash); err != nil {
		return nil, err
	}
	m.SetDetached(detached)

	return m.Sign(signer)
}

// VerifyHashEnvelope verifies both that sign1 is a validly signed hash
// envelope and that the hash it carries matches artifact.
func VerifyHashEnvelope(sign1 []byte, artifact []byte, verifier Verifier) (*HashEnvelopeVerificationResult, error) {
	params, err := extractHashEnvelopeParams(sign1)
	if err != nil {
		return &HashEnvelopeVerificationResult{}, fmt.Errorf("extract hash envelope params: %w", err)
	}

	computedHash, err := HashData(artifact, params.PayloadHashAlg)
	if err != nil {
		return &HashEnvelopeVerificationResult{}, fmt.Errorf("compute hash: %w", err)
	}

	// computedHash doubles as the externalPayload VerifySign0 needs for a
	// detached envelope; an inline envelope ignores it and returns its own
	// embedded payload instead.
	payload, verifyErr := VerifySign0(sign1, verifier, nil, computedHash)
	signatureValid := verifyErr == nil

	hashValid := signatureValid && bytes.Equal(computedHash, payload)
	return &HashEnvelopeVerificationResult{SignatureValid: signatureValid, HashValid: hashValid}, nil
}

// extractHashEnvelopeParams decodes sign1's protected headers (without
// verifying the signature) to recover the hash-envelope parameters. sign1
// may be tagged or untagged COSE_Sign1.
func extractHashEnvelopeParams(sign1 []byte) (*HashEnvelope, error) {
	w, err := decodeTaggedOrPlain[wireSign0](sign1)
	if err != nil {
		return nil, fmt.Errorf("decode COSE_Sign1: %w", err)
	}

	h := NewHeaderBucket()
	if err := h.loadFromRaw(w.Protected, w.Unprotected); err != nil {
		return nil, err
	}

	hashAlg, ok := h.GetInt64(HeaderLabelPayloadHashAlg, BucketProtected)
	if !ok {
		return nil, fmt.Errorf("missing payload_hash_alg (label 258) in protected headers")
	}

	var preimageContentType, payloadLocation string
	if v, ok := h.Get(HeaderLabelPayloadPreimageContentType, BucketProtected); ok {
		if s, ok := v.(string); ok {
			preimageContentType = s
		}
	}
	if v, ok := h.Get(HeaderLabelPayloadLocation, BucketProtected); ok {
		if s, ok := v.(string); ok {
			payloadLocation = s
		}
	}

	return &HashEnvelope{
		PayloadHash:         w.Payload,
		PayloadHashAlg:      int(hashAlg),
		PreimageContentType: preimageContentType,
		PayloadLocation:     payloadLocation,
	}, nil
}

// getCryptoHashAlgorithm converts COSE hash algorithm to crypto.Hash
func getCryptoHashAlgorithm(algorithm int) (crypto.Hash, error) {
	switch algorithm {
	case HashAlgorithmSHA256:
		return crypto.SHA256, nil
	case HashAlgorithmSHA384:
		return crypto.SHA384, nil
	case HashAlgorithmSHA512:
		return crypto.SHA512, nil
	default:
		return 0, fmt.Errorf("unsupported hash algorithm: %d", algorithm)
	}
}
