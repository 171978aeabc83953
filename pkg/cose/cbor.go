package cose

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// canonicalEncMode and laxDecMode are a single
// canonical (deterministic, sorted-map) encode mode shared by every
// protected-header and AAD/KDF-context serialization in this package, so
// the "identical byte output across round-trips of unchanged headers"
// property in this package holds without each call site re-deriving its
// own cbor.EncMode.
var canonicalEncMode cbor.EncMode

// laxDecMode decodes integers flexibly (both int64 and uint64 forms unify
// into int64 callers can toInt64 without caring about encoded sign), which
// is what every header/KDF-context lookup in this package expects.
var laxDecMode cbor.DecMode

func init() {
	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
	}
	m, err := encOpts.EncMode()
	if err != nil {
		panic(err)
	}
	canonicalEncMode = m

	decOpts := cbor.DecOptions{
		IndefLength:      cbor.IndefLengthForbidden,
		IntDec:           cbor.IntDecConvertSigned,
		MapKeyByteString: cbor.MapKeyByteStringAllowed,
		// Nested COSE_Key maps (an ECDH recipient's ephemeral/static sender
		// key header, RFC 9053 section 6.1) decode into interface{} one
		// level below the top header map; forcing the same int64-keyed map
		// type there is what lets agree() in recipient.go type-assert
		// straight to map[int64]interface{} instead of re-walking a
		// map[interface{}]interface{}.
		DefaultMapType: reflect.TypeOf(map[int64]interface{}{}),
	}
	d, err := decOpts.DecMode()
	if err != nil {
		panic(err)
	}
	laxDecMode = d
}

// encodeMaybeTagged returns body (an already-encoded CBOR array) unchanged
// when tagged is false -- the engine's default, emitting a bare
// COSE_Encrypt/Mac/Sign array -- or wraps it in CBOR tag tagNum
// (16/96/17/97/18/98) when the caller opted into the tagged form via
// core.SetTagged.
func encodeMaybeTagged(tagNum uint64, tagged bool, body []byte) ([]byte, error) {
	if !tagged {
		return body, nil
	}
	out, err := canonicalEncMode.Marshal(cbor.Tag{Number: tagNum, Content: cbor.RawMessage(body)})
	if err != nil {
		return nil, fmt.Errorf("%w: encode CBOR tag %d: %v", ErrCBOR, tagNum, err)
	}
	return out, nil
}

// decodeTaggedOrPlain unmarshals data into a T, accepting either a
// COSE_*_Tagged value (CBOR tag wrapping the array) or a bare untagged
// array, per  "the engine accepts either tagged or untagged arrays
// on decode". data is first tried as a CBOR tag; any failure (including a
// bare array, which isn't major type 6) falls back to decoding data
// directly as T.
func decodeTaggedOrPlain[T any](data []byte) (T, error) {
	var zero T
	var tag cbor.RawTag
	if err := laxDecMode.Unmarshal(data, &tag); err == nil {
		var w T
		if err := laxDecMode.Unmarshal(tag.Content, &w); err != nil {
			return zero, fmt.Errorf("%w: decode tagged content: %v", ErrCBOR, err)
		}
		return w, nil
	}
	var w T
	if err := laxDecMode.Unmarshal(data, &w); err != nil {
		return zero, fmt.Errorf("%w: decode: %v", ErrCBOR, err)
	}
	return w, nil
}
