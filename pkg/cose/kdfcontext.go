package cose

import "fmt"

// PartyInfo is one of the PartyU / PartyV sub-arrays of COSE_KDF_Context.
// Absent fields collapse the inner array shorter rather than being padded
// with nulls, matching RFC 9053 section 5.2.
type PartyInfo struct {
	Identity []byte
	Nonce    []byte
	Other    []byte
}

func (p PartyInfo) encode() []interface{} {
	var out []interface{}
	// Per RFC 9053, trailing absent fields are dropped; a present field
	// after an absent one still needs a null placeholder, but in practice
	// callers set fields left-to-right, so we drop only a pure trailing run.
	items := []interface{}{identityOrNil(p.Identity), nonceOrNil(p.Nonce), otherOrNil(p.Other)}
	last := -1
	for i, v := range items {
		if v != nil {
			last = i
		}
	}
	out = items[:last+1]
	return out
}

func identityOrNil(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return b
}
func nonceOrNil(b []byte) interface{} { return identityOrNil(b) }
func otherOrNil(b []byte) interface{} { return identityOrNil(b) }

// KDFContext carries the fields needed to build COSE_KDF_Context, consumed
// by every HKDF-based recipient family (Direct-HKDF-*, ECDH-*-HKDF*).
type KDFContext struct {
	AlgorithmID       int64
	PartyU            PartyInfo
	PartyV            PartyInfo
	KeyDataLengthBits uint
	ProtectedBytes    []byte
	SuppPubOther      []byte
	SuppPrivInfo      []byte
}

// Build serializes the COSE_KDF_Context structure:
//
//	[ AlgorithmID,
//	  [ PartyU... ],
//	  [ PartyV... ],
//	  [ keyDataLength_bits, protected_bstr, SuppPubOther? ],
//	  SuppPrivInfo? ]
func (k KDFContext) Build() ([]byte, error) {
	protected := k.ProtectedBytes
	if protected == nil {
		protected = []byte{}
	}

	suppPub := []interface{}{k.KeyDataLengthBits, protected}
	if k.SuppPubOther != nil {
		suppPub = append(suppPub, k.SuppPubOther)
	}

	structure := []interface{}{
		k.AlgorithmID,
		k.PartyU.encode(),
		k.PartyV.encode(),
		suppPub,
	}
	if k.SuppPrivInfo != nil {
		structure = append(structure, k.SuppPrivInfo)
	}

	b, err := canonicalEncMode.Marshal(structure)
	if err != nil {
		return nil, fmt.Errorf("%w: encode COSE_KDF_Context: %v", ErrCBOR, err)
	}
	return b, nil
}

// partyInfoFromHeaders clones the PartyU/PartyV identity/nonce/other values
// found in a recipient's header buckets under the COSE-reserved labels. Any
// combination of present/absent fields is accepted.
func partyInfoFromHeaders(h *HeaderBucket, identityKey, nonceKey, otherKey int64) PartyInfo {
	identity, _ := h.GetBytes(identityKey, BucketDoNotSend|BucketBoth)
	nonce, _ := h.GetBytes(nonceKey, BucketDoNotSend|BucketBoth)
	other, _ := h.GetBytes(otherKey, BucketDoNotSend|BucketBoth)
	return PartyInfo{Identity: identity, Nonce: nonce, Other: other}
}
