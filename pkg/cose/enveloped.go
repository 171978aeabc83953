package cose

import (
	"fmt"
)

// Encrypt0 is a single-recipient encrypted message: no recipient structure
// at all, the CEK is supplied directly by the caller.
type Encrypt0 struct {
	*core
}

// NewEncrypt0 allocates an empty, Constructing Encrypt0 message.
func NewEncrypt0() *Encrypt0 { return &Encrypt0{core: newCore()} }

// SetPlaintext stores the content to be encrypted.
func (m *Encrypt0) SetPlaintext(b []byte) error { return m.setBody(b) }

// SetExternalAAD stores the do-not-send external AAD bytes.
func (m *Encrypt0) SetExternalAAD(b []byte) error { return m.setExternal(b) }

// wireEncrypt0 is the three-element COSE_Encrypt0 CBOR array.
type wireEncrypt0 struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected map[int64]interface{}
	Ciphertext  []byte
}

// Encrypt runs the AEAD over this message's plaintext using cek, finalizes
// the message, and returns the encoded COSE_Encrypt0 bytes (untagged unless
// SetTagged(true) was called, then wrapped in tag 16).
func (m *Encrypt0) Encrypt(cek []byte) ([]byte, error) {
	rec, err := m.headers.Alg()
	if err != nil {
		return nil, err
	}
	if err := RequireKeyBytes(cek, rec.KeyBits); err != nil {
		return nil, err
	}

	protected, err := m.headers.EncodeProtected()
	if err != nil {
		return nil, err
	}
	aad, err := BuildAAD(ContextEncrypt0, protected, m.external, nil, false)
	if err != nil {
		return nil, err
	}

	nonce, ok := m.headers.GetBytes(HeaderLabelIV, BucketBoth)
	if !ok {
		return nil, fmt.Errorf("%w: Encrypt0 requires an IV header", ErrInvalidParameter)
	}

	ciphertext, err := encryptContent(rec, cek, nonce, m.body, aad)
	if err != nil {
		return nil, err
	}

	m.finalize()
	return m.encode(protected, ciphertext)
}

func (m *Encrypt0) encode(protected, ciphertext []byte) ([]byte, error) {
	w := wireEncrypt0{Protected: protected, Unprotected: m.headers.UnprotectedMap(), Ciphertext: ciphertext}
	body, err := canonicalEncMode.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("%w: encode COSE_Encrypt0: %v", ErrCBOR, err)
	}
	return encodeMaybeTagged(16, m.tagged, body)
}

// DecryptEncrypt0 parses COSE_Encrypt0 bytes, tagged or untagged, and
// decrypts with cek.
func DecryptEncrypt0(data, cek, external []byte) ([]byte, error) {
	w, err := decodeTaggedOrPlain[wireEncrypt0](data)
	if err != nil {
		return nil, err
	}

	h := NewHeaderBucket()
	if err := h.loadFromRaw(w.Protected, w.Unprotected); err != nil {
		return nil, err
	}
	rec, err := h.Alg()
	if err != nil {
		return nil, err
	}
	if err := RequireKeyBytes(cek, rec.KeyBits); err != nil {
		return nil, err
	}

	aad, err := BuildAAD(ContextEncrypt0, w.Protected, external, nil, false)
	if err != nil {
		return nil, err
	}
	nonce, ok := h.GetBytes(HeaderLabelIV, BucketBoth)
	if !ok {
		return nil, fmt.Errorf("%w: Encrypt0 missing IV header", ErrInvalidParameter)
	}

	return decryptContent(rec, cek, nonce, w.Ciphertext, aad)
}

// Enveloped is a multi-recipient encrypted message: same AEAD body as
// Encrypt0, plus a recipient tree the Recipient Engine resolves a CEK
// from.
type Enveloped struct {
	*core
	recipients []*Recipient
}

// NewEnveloped allocates an empty, Constructing Enveloped message.
func NewEnveloped() *Enveloped { return &Enveloped{core: newCore()} }

// SetPlaintext stores the content to be encrypted.
func (m *Enveloped) SetPlaintext(b []byte) error { return m.setBody(b) }

// SetExternalAAD stores the do-not-send external AAD bytes.
func (m *Enveloped) SetExternalAAD(b []byte) error { return m.setExternal(b) }

// AddRecipient attaches a top-level recipient, retaining a shared
// reference.
func (m *Enveloped) AddRecipient(r *Recipient) {
	r.retain()
	m.recipients = append(m.recipients, r)
}

// Recipients returns the top-level recipient list.
func (m *Enveloped) Recipients() []*Recipient { return m.recipients }

type wireRecipient struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected map[int64]interface{}
	Ciphertext  []byte
	Recipients  []wireRecipient `cbor:",omitempty"`
}

type wireEnveloped struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected map[int64]interface{}
	Ciphertext  []byte
	Recipients  []wireRecipient
}

func encodeRecipient(r *Recipient) (wireRecipient, error) {
	protected, err := r.headers.EncodeProtected()
	if err != nil {
		return wireRecipient{}, err
	}
	ciphertext := r.body
	if ciphertext == nil {
		ciphertext = []byte{} // an empty body goes on the wire as h'', not null
	}
	w := wireRecipient{Protected: protected, Unprotected: r.headers.UnprotectedMap(), Ciphertext: ciphertext}
	for _, child := range r.recipients {
		cw, err := encodeRecipient(child)
		if err != nil {
			return wireRecipient{}, err
		}
		w.Recipients = append(w.Recipients, cw)
	}
	return w, nil
}

func decodeRecipient(w wireRecipient) (*Recipient, error) {
	r := NewRecipient()
	if err := r.headers.loadFromRaw(w.Protected, w.Unprotected); err != nil {
		return nil, err
	}
	r.body = w.Ciphertext
	for _, cw := range w.Recipients {
		child, err := decodeRecipient(cw)
		if err != nil {
			return nil, err
		}
		r.AddRecipient(child)
	}
	return r, nil
}

// Encrypt resolves or validates the CEK via engine, encrypts the plaintext,
// finalizes the message, and returns the encoded COSE_Encrypt bytes
// (untagged unless SetTagged(true) was called, then wrapped in tag 96). The
// caller's cek buffer is left unchanged. If cek is nil, a fresh CEK is sampled unless the recipient list
// is direct-like -- a Direct (or Direct-HKDF/ECDH-*-HKDF) recipient's CEK
// IS the recipient's own key, which this type has no way to read back out
// of the recipient once built, so a caller that wants a direct-like
// recipient MUST supply that recipient's key as cek explicitly (spec.md
// §4.5: "If ALL recipients are direct-like, the first such recipient
// GENERATES the CEK" -- sampling a random one instead would silently
// produce an undecryptable message).
func (m *Enveloped) Encrypt(cek []byte) ([]byte, error) {
	if err := checkRecipientHomogeneity(m.recipients); err != nil {
		return nil, err
	}

	rec, err := m.headers.Alg()
	if err != nil {
		return nil, err
	}
	if cek == nil {
		if anyDirectLike(m.recipients) {
			return nil, fmt.Errorf("%w: a direct-like recipient requires the caller to supply its key as the CEK", ErrInvalidParameter)
		}
		cek, err = GenerateCEK(rec.KeyBits)
		if err != nil {
			return nil, err
		}
	}
	if err := RequireKeyBytes(cek, rec.KeyBits); err != nil {
		return nil, err
	}
	// Work on a private copy so wiping it does not clobber the caller's key.
	cek = append([]byte(nil), cek...)
	defer zeroize(cek)

	protected, err := m.headers.EncodeProtected()
	if err != nil {
		return nil, err
	}
	aad, err := BuildAAD(ContextEncrypt, protected, m.external, nil, false)
	if err != nil {
		return nil, err
	}
	nonce, ok := m.headers.GetBytes(HeaderLabelIV, BucketBoth)
	if !ok {
		return nil, fmt.Errorf("%w: Enveloped requires an IV header", ErrInvalidParameter)
	}

	ciphertext, err := encryptContent(rec, cek, nonce, m.body, aad)
	if err != nil {
		return nil, err
	}

	w := wireEnveloped{Protected: protected, Unprotected: m.headers.UnprotectedMap(), Ciphertext: ciphertext}
	for _, r := range m.recipients {
		rw, err := encodeRecipient(r)
		if err != nil {
			return nil, err
		}
		w.Recipients = append(w.Recipients, rw)
	}

	m.finalize()
	body, err := canonicalEncMode.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("%w: encode COSE_Encrypt: %v", ErrCBOR, err)
	}
	return encodeMaybeTagged(96, m.tagged, body)
}

// DecryptEnveloped parses COSE_Encrypt bytes, tagged or untagged, resolves
// the CEK through engine against the message's recipient tree, and
// decrypts.
func DecryptEnveloped(data []byte, engine *RecipientEngine, external []byte) ([]byte, error) {
	w, err := decodeTaggedOrPlain[wireEnveloped](data)
	if err != nil {
		return nil, err
	}

	h := NewHeaderBucket()
	if err := h.loadFromRaw(w.Protected, w.Unprotected); err != nil {
		return nil, err
	}
	rec, err := h.Alg()
	if err != nil {
		return nil, err
	}

	var recipients []*Recipient
	for _, rw := range w.Recipients {
		r, err := decodeRecipient(rw)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, r)
	}

	engine.EnclosingProtected = w.Protected
	cek, err := engine.ResolveCEK(recipients, rec.KeyBits)
	if err != nil {
		return nil, err
	}
	defer zeroize(cek)

	aad, err := BuildAAD(ContextEncrypt, w.Protected, external, nil, false)
	if err != nil {
		return nil, err
	}
	nonce, ok := h.GetBytes(HeaderLabelIV, BucketBoth)
	if !ok {
		return nil, fmt.Errorf("%w: Enveloped missing IV header", ErrInvalidParameter)
	}

	return decryptContent(rec, cek, nonce, w.Ciphertext, aad)
}

// encryptContent dispatches to the AEAD family the content algorithm
// belongs to; every Enveloped/Encrypt0 content algorithm is either
// AES-GCM or AES-CCM.
func encryptContent(rec AlgRecord, key, nonce, plaintext, aad []byte) ([]byte, error) {
	switch rec.Family {
	case FamilyAESGCM:
		return aesGCMSeal(key, nonce, plaintext, aad)
	case FamilyAESCCM:
		p, err := ccmParamsFor(rec)
		if err != nil {
			return nil, err
		}
		return aesCCMEncrypt(key, nonce, plaintext, aad, p)
	default:
		return nil, fmt.Errorf("%w: algorithm family %d is not a content-encryption algorithm", ErrUnknownAlgorithm, rec.Family)
	}
}

func decryptContent(rec AlgRecord, key, nonce, ciphertext, aad []byte) ([]byte, error) {
	switch rec.Family {
	case FamilyAESGCM:
		return aesGCMOpen(key, nonce, ciphertext, aad)
	case FamilyAESCCM:
		p, err := ccmParamsFor(rec)
		if err != nil {
			return nil, err
		}
		return aesCCMDecrypt(key, nonce, ciphertext, aad, p)
	default:
		return nil, fmt.Errorf("%w: algorithm family %d is not a content-encryption algorithm", ErrUnknownAlgorithm, rec.Family)
	}
}
