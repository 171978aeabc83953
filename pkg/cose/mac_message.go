package cose

import (
	"fmt"
)

// Mac0 is a single-recipient MAC message: the authentication key is
// supplied directly, no recipient structure.
type Mac0 struct {
	*core
}

// NewMac0 allocates an empty, Constructing Mac0 message.
func NewMac0() *Mac0 { return &Mac0{core: newCore()} }

// SetPayload stores the content to be authenticated.
func (m *Mac0) SetPayload(b []byte) error { return m.setBody(b) }

// SetExternalAAD stores the do-not-send external AAD bytes.
func (m *Mac0) SetExternalAAD(b []byte) error { return m.setExternal(b) }

type wireMac0 struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected map[int64]interface{}
	Payload     []byte
	Tag         []byte
}

// Tag computes the MAC over this message's payload using key, finalizes
// the message, and returns the encoded COSE_Mac0 bytes (untagged unless
// SetTagged(true) was called, then wrapped in tag 17).
func (m *Mac0) Tag(key []byte) ([]byte, error) {
	rec, err := m.headers.Alg()
	if err != nil {
		return nil, err
	}
	if err := RequireKeyBytes(key, rec.KeyBits); err != nil {
		return nil, err
	}

	protected, err := m.headers.EncodeProtected()
	if err != nil {
		return nil, err
	}
	macInput, err := BuildAAD(ContextMAC0, protected, m.external, m.body, true)
	if err != nil {
		return nil, err
	}

	tag, err := computeMAC(rec, key, macInput)
	if err != nil {
		return nil, err
	}

	m.finalize()
	w := wireMac0{Protected: protected, Unprotected: m.headers.UnprotectedMap(), Payload: m.body, Tag: tag}
	body, err := canonicalEncMode.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("%w: encode COSE_Mac0: %v", ErrCBOR, err)
	}
	return encodeMaybeTagged(17, m.tagged, body)
}

// VerifyMac0 parses COSE_Mac0 bytes, tagged or untagged, and verifies the
// tag with key, returning the payload on success.
func VerifyMac0(data, key, external []byte) ([]byte, error) {
	w, err := decodeTaggedOrPlain[wireMac0](data)
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
	if err := RequireKeyBytes(key, rec.KeyBits); err != nil {
		return nil, err
	}

	macInput, err := BuildAAD(ContextMAC0, w.Protected, external, w.Payload, true)
	if err != nil {
		return nil, err
	}
	want, err := computeMAC(rec, key, macInput)
	if err != nil {
		return nil, err
	}
	if !verifyTag(w.Tag, want) {
		return nil, fmt.Errorf("%w: MAC0 tag mismatch", ErrCryptoFail)
	}
	return w.Payload, nil
}

// Mac is a multi-recipient MAC message: same tag computation as Mac0, plus
// a recipient tree the Recipient Engine resolves the MAC key from.
type Mac struct {
	*core
	recipients []*Recipient
}

// NewMac allocates an empty, Constructing Mac message.
func NewMac() *Mac { return &Mac{core: newCore()} }

// SetPayload stores the content to be authenticated.
func (m *Mac) SetPayload(b []byte) error { return m.setBody(b) }

// SetExternalAAD stores the do-not-send external AAD bytes.
func (m *Mac) SetExternalAAD(b []byte) error { return m.setExternal(b) }

// AddRecipient attaches a top-level recipient, retaining a shared
// reference.
func (m *Mac) AddRecipient(r *Recipient) {
	r.retain()
	m.recipients = append(m.recipients, r)
}

// Recipients returns the top-level recipient list.
func (m *Mac) Recipients() []*Recipient { return m.recipients }

type wireMac struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected map[int64]interface{}
	Payload     []byte
	Tag         []byte
	Recipients  []wireRecipient
}

// Tag computes the MAC, finalizes the message, and returns the encoded
// COSE_Mac bytes (untagged unless SetTagged(true) was called, then wrapped
// in tag 97). The caller's macKey buffer is left unchanged. If macKey is nil, a fresh key is sampled
// unless the recipient list is direct-like: a Direct (or Direct-HKDF/
// ECDH-*-HKDF) recipient's MAC key IS the recipient's own key, which this
// type has no way to read back out of the recipient once built, so a
// caller that wants a direct-like recipient MUST supply that recipient's
// key as macKey explicitly (spec.md §4.5's random-CEK rule applies equally
// to the MAC key here -- sampling a random one would silently produce a
// tag the direct recipient could never reproduce on verify).
func (m *Mac) Tag(macKey []byte) ([]byte, error) {
	if err := checkRecipientHomogeneity(m.recipients); err != nil {
		return nil, err
	}

	rec, err := m.headers.Alg()
	if err != nil {
		return nil, err
	}
	if macKey == nil {
		if anyDirectLike(m.recipients) {
			return nil, fmt.Errorf("%w: a direct-like recipient requires the caller to supply its key as the MAC key", ErrInvalidParameter)
		}
		generated, err := GenerateCEK(rec.KeyBits)
		if err != nil {
			return nil, err
		}
		macKey = generated
	}
	if err := RequireKeyBytes(macKey, rec.KeyBits); err != nil {
		return nil, err
	}
	// Work on a private copy so wiping it does not clobber the caller's key.
	macKey = append([]byte(nil), macKey...)
	defer zeroize(macKey)

	protected, err := m.headers.EncodeProtected()
	if err != nil {
		return nil, err
	}
	macInput, err := BuildAAD(ContextMAC, protected, m.external, m.body, true)
	if err != nil {
		return nil, err
	}

	tagBytes, err := computeMAC(rec, macKey, macInput)
	if err != nil {
		return nil, err
	}

	w := wireMac{Protected: protected, Unprotected: m.headers.UnprotectedMap(), Payload: m.body, Tag: tagBytes}
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
		return nil, fmt.Errorf("%w: encode COSE_Mac: %v", ErrCBOR, err)
	}
	return encodeMaybeTagged(97, m.tagged, body)
}

// VerifyMac parses COSE_Mac bytes, tagged or untagged, resolves the MAC
// key through engine against the recipient tree, and verifies the tag.
func VerifyMac(data []byte, engine *RecipientEngine, external []byte) ([]byte, error) {
	w, err := decodeTaggedOrPlain[wireMac](data)
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
	macKey, err := engine.ResolveCEK(recipients, rec.KeyBits)
	if err != nil {
		return nil, err
	}
	defer zeroize(macKey)

	macInput, err := BuildAAD(ContextMAC, w.Protected, external, w.Payload, true)
	if err != nil {
		return nil, err
	}
	want, err := computeMAC(rec, macKey, macInput)
	if err != nil {
		return nil, err
	}
	if !verifyTag(w.Tag, want) {
		return nil, fmt.Errorf("%w: MAC tag mismatch", ErrCryptoFail)
	}
	return w.Payload, nil
}

// computeMAC dispatches to HMAC or AES-CBC-MAC and truncates to the
// algorithm's tag size.
func computeMAC(rec AlgRecord, key, macInput []byte) ([]byte, error) {
	switch rec.Family {
	case FamilyHMAC:
		full, err := hmacDigest(rec.HashBits, key, macInput)
		if err != nil {
			return nil, err
		}
		return full[:rec.TagBits/8], nil
	case FamilyAESCBCMAC:
		full, err := aesCBCMAC(key, macInput)
		if err != nil {
			return nil, err
		}
		return full[:rec.TagBits/8], nil
	default:
		return nil, fmt.Errorf("%w: algorithm family %d is not a MAC algorithm", ErrUnknownAlgorithm, rec.Family)
	}
}
