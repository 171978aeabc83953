package cose

import "fmt"

// Context selects which of the four-element AAD structures is being built:
// Sig_structure, Enc_structure, or MAC_structure, each under one of the
// context strings RFC 9052 reserves for it.
type Context string

const (
	ContextEncrypt      Context = "Encrypt"
	ContextEncrypt0     Context = "Encrypt0"
	ContextMAC          Context = "MAC"
	ContextMAC0         Context = "MAC0"
	ContextSignature    Context = "Signature"
	ContextSignature1   Context = "Signature1"
	ContextEncRecipient Context = "Enc_Recipient"
	ContextMacRecipient Context = "Mac_Recipient"
	ContextRecRecipient Context = "Rec_Recipient"
)

// BuildAAD serializes the four-element structure
//
//	[ context_string, protected_bstr, external_bstr, payload_or_empty ]
//
// payload is omitted from the encoded array (the AAD
// form used by AEAD primitives) when includePayload is false; MAC and sign
// structures always pass includePayload=true even when payload is empty, so
// that an explicit zero-length byte string is encoded rather than the field
// being dropped.
//
// The usual approach is "measure first, then write into an exact-sized buffer"
// two-pass encoding; cbor.Marshal already walks the value graph once to
// size each length-prefixed item before writing, so a second explicit sizing
// pass here would just duplicate that work. What matters, and what this
// function guarantees, is that the returned bytes are exactly the encoded
// four-element array -- no padding, no scratch-buffer slack left in the
// output.
func BuildAAD(ctx Context, protectedBytes, external, payload []byte, includePayload bool) ([]byte, error) {
	if external == nil {
		external = []byte{}
	}
	if protectedBytes == nil {
		protectedBytes = []byte{}
	}

	var structure []interface{}
	if includePayload {
		if payload == nil {
			payload = []byte{}
		}
		structure = []interface{}{string(ctx), protectedBytes, external, payload}
	} else {
		structure = []interface{}{string(ctx), protectedBytes, external}
	}

	b, err := canonicalEncMode.Marshal(structure)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s structure: %v", ErrCBOR, ctx, err)
	}
	return b, nil
}

// BuildSigStructure builds the five-element Sig_structure used by multi-
// signer Signed messages, where the signer's own protected headers are
// covered in addition to the body's :
//
//	[ "Signature", body_protected, sign_protected, external_aad, payload ]
func BuildSigStructure(bodyProtected, signProtected, external, payload []byte) ([]byte, error) {
	if external == nil {
		external = []byte{}
	}
	if payload == nil {
		payload = []byte{}
	}
	structure := []interface{}{string(ContextSignature), bodyProtected, signProtected, external, payload}
	b, err := canonicalEncMode.Marshal(structure)
	if err != nil {
		return nil, fmt.Errorf("%w: encode Sig_structure: %v", ErrCBOR, err)
	}
	return b, nil
}
