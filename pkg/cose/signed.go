package cose

import (
	"fmt"
)

// Sign0 is a single-signer signed message: one signature over a Signature1
// structure, no per-signer header/signature pairs.
type Sign0 struct {
	*core
	detached bool
}

// NewSign0 allocates an empty, Constructing Sign0 message.
func NewSign0() *Sign0 { return &Sign0{core: newCore()} }

// SetPayload stores the content to be signed.
func (m *Sign0) SetPayload(b []byte) error { return m.setBody(b) }

// SetExternalAAD stores the do-not-send external AAD bytes.
func (m *Sign0) SetExternalAAD(b []byte) error { return m.setExternal(b) }

// SetDetached controls whether the encoded message carries its payload
// inline or omits it (the caller must then supply externalPayload to
// VerifySign0). The payload is still covered by the signature either way.
func (m *Sign0) SetDetached(detached bool) { m.detached = detached }

type wireSign0 struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected map[int64]interface{}
	Payload     []byte
	Signature   []byte
}

// Sign builds the Signature1 structure, signs it with signer, finalizes the
// message, and returns the encoded COSE_Sign1 bytes (untagged unless
// SetTagged(true) was called, then wrapped in tag 18).
func (m *Sign0) Sign(signer Signer) ([]byte, error) {
	if _, ok := m.headers.Get(HeaderLabelAlg, BucketBoth); !ok {
		if err := m.HeaderPut(HeaderLabelAlg, signer.Algorithm(), BucketProtected); err != nil {
			return nil, err
		}
	}

	protected, err := m.headers.EncodeProtected()
	if err != nil {
		return nil, err
	}
	toBeSigned, err := BuildAAD(ContextSignature1, protected, m.external, m.body, true)
	if err != nil {
		return nil, err
	}

	signature, err := signer.Sign(toBeSigned)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFail, err)
	}

	m.finalize()
	wirePayload := m.body
	if m.detached {
		wirePayload = nil
	}
	w := wireSign0{Protected: protected, Unprotected: m.headers.UnprotectedMap(), Payload: wirePayload, Signature: signature}
	body, err := canonicalEncMode.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("%w: encode COSE_Sign1: %v", ErrCBOR, err)
	}
	return encodeMaybeTagged(18, m.tagged, body)
}

// VerifySign0 parses COSE_Sign1 bytes, tagged or untagged, and verifies the
// signature with verifier, returning the payload on success. externalPayload
// supplies the payload for a detached (nil-payload) message.
func VerifySign0(data []byte, verifier Verifier, external, externalPayload []byte) ([]byte, error) {
	w, err := decodeTaggedOrPlain[wireSign0](data)
	if err != nil {
		return nil, err
	}

	payload := w.Payload
	if payload == nil {
		if externalPayload == nil {
			return nil, fmt.Errorf("%w: detached Sign1 requires an external payload", ErrInvalidParameter)
		}
		payload = externalPayload
	}

	toBeSigned, err := BuildAAD(ContextSignature1, w.Protected, external, payload, true)
	if err != nil {
		return nil, err
	}

	ok, err := verifier.Verify(toBeSigned, w.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFail, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: Sign1 signature verification failed", ErrCryptoFail)
	}
	return payload, nil
}

// Signer1 is one signer in a Signed message: its own header bucket plus the
// signature it produced, kept apart from the content-signing algorithm the
// body protected headers carry.
type Signer1 struct {
	*core
	signature []byte
}

// NewSigner1 allocates an empty, Constructing signer entry.
func NewSigner1() *Signer1 { return &Signer1{core: newCore()} }

// Signed is a multi-signer signed message: the body carries only content
// headers and the payload; each Signer1 covers both the body's protected
// headers and its own via Sig_structure.
type Signed struct {
	*core
	signers []*Signer1
}

// NewSigned allocates an empty, Constructing Signed message.
func NewSigned() *Signed { return &Signed{core: newCore()} }

// SetPayload stores the content to be signed.
func (m *Signed) SetPayload(b []byte) error { return m.setBody(b) }

// SetExternalAAD stores the do-not-send external AAD bytes.
func (m *Signed) SetExternalAAD(b []byte) error { return m.setExternal(b) }

type wireSigner struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected map[int64]interface{}
	Signature   []byte
}

type wireSigned struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected map[int64]interface{}
	Payload     []byte
	Signers     []wireSigner
}

// AddSigner builds the Sig_structure for signer against this message's
// current body/headers, signs it, and appends the resulting Signer1 to the
// signer list. Each signer may carry its own alg in its own protected
// bucket even when other signers use a different algorithm (per-signer
// algorithm agility).
func (m *Signed) AddSigner(signer Signer, headerAlgBucket Bucket) error {
	s := NewSigner1()
	if err := s.HeaderPut(HeaderLabelAlg, signer.Algorithm(), headerAlgBucket); err != nil {
		return err
	}

	bodyProtected, err := m.headers.EncodeProtected()
	if err != nil {
		return err
	}
	signProtected, err := s.headers.EncodeProtected()
	if err != nil {
		return err
	}
	toBeSigned, err := BuildSigStructure(bodyProtected, signProtected, m.external, m.body)
	if err != nil {
		return err
	}

	signature, err := signer.Sign(toBeSigned)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCryptoFail, err)
	}
	s.signature = signature
	s.finalize()

	m.signers = append(m.signers, s)
	return nil
}

// Finalize encodes the message without a further signing step (all signers
// were added via AddSigner, which signs eagerly against the body as it
// stood at call time -- adding the payload or a further header after the
// first AddSigner call would invalidate earlier signatures, so Finalize
// simply fails closed if signers is empty).
func (m *Signed) Finalize() ([]byte, error) {
	if len(m.signers) == 0 {
		return nil, fmt.Errorf("%w: Signed message has no signers", ErrInvalidParameter)
	}

	protected, err := m.headers.EncodeProtected()
	if err != nil {
		return nil, err
	}

	w := wireSigned{Protected: protected, Unprotected: m.headers.UnprotectedMap(), Payload: m.body}
	for _, s := range m.signers {
		sp, err := s.headers.EncodeProtected()
		if err != nil {
			return nil, err
		}
		w.Signers = append(w.Signers, wireSigner{Protected: sp, Unprotected: s.headers.UnprotectedMap(), Signature: s.signature})
	}

	m.finalize()
	body, err := canonicalEncMode.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("%w: encode COSE_Sign: %v", ErrCBOR, err)
	}
	return encodeMaybeTagged(98, m.tagged, body)
}

// VerifiedSigner reports the outcome of verifying one signer within a
// Signed message.
type VerifiedSigner struct {
	Headers *HeaderBucket
	Valid   bool
	Err     error
}

// VerifySigned parses COSE_Sign bytes, tagged or untagged, and verifies
// every signer using the algorithm each one's own protected/unprotected
// headers declare; verifierFor resolves a signer's header bucket (typically
// by its kid) to a Verifier. Returns the payload plus one VerifiedSigner per
// entry in the signers array, in wire order, so the caller can apply its own
// any-valid/all-valid policy.
func VerifySigned(data []byte, external []byte, verifierFor func(h *HeaderBucket) (Verifier, error)) ([]byte, []VerifiedSigner, error) {
	w, err := decodeTaggedOrPlain[wireSigned](data)
	if err != nil {
		return nil, nil, err
	}

	results := make([]VerifiedSigner, 0, len(w.Signers))
	for _, sw := range w.Signers {
		h := NewHeaderBucket()
		if err := h.loadFromRaw(sw.Protected, sw.Unprotected); err != nil {
			results = append(results, VerifiedSigner{Headers: h, Err: err})
			continue
		}

		verifier, err := verifierFor(h)
		if err != nil {
			results = append(results, VerifiedSigner{Headers: h, Err: err})
			continue
		}

		toBeSigned, err := BuildSigStructure(w.Protected, sw.Protected, external, w.Payload)
		if err != nil {
			results = append(results, VerifiedSigner{Headers: h, Err: err})
			continue
		}

		ok, err := verifier.Verify(toBeSigned, sw.Signature)
		results = append(results, VerifiedSigner{Headers: h, Valid: ok, Err: err})
	}

	return w.Payload, results, nil
}
