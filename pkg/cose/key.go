package cose

import "fmt"

// COSE_Key type values (RFC 9053 table 21), needed to disambiguate the map
// the engine reads directly ("Key object").
const (
	KeyTypeOKP       = 1
	KeyTypeEC2       = 2
	KeyTypeRSA       = 3
	KeyTypeSymmetric = 4
)

// COSE_Key map labels the engine reads directly: kty is common to every
// key type; k is the symmetric key bytes; crv/x/y/d are the EC2 fields.
// The engine never interprets a textual key representation -- only these
// integer-keyed CBOR map positions.
const (
	KeyLabelKty = 1
	KeyLabelKid = 2
	KeyLabelAlg = 3

	KeyLabelSymmetricK = -1

	KeyLabelEC2Crv = -1
	KeyLabelEC2X   = -2
	KeyLabelEC2Y   = -3
	KeyLabelEC2D   = -4
)

// COSE EC2 curve identifiers (RFC 9053 table 18).
const (
	CurveP256 = 1
	CurveP384 = 2
	CurveP521 = 3
)

// Key is the engine's in-memory COSE_Key: a small map of integer labels to
// values, exactly the shape this package describes. Bridging helpers in
// keygen.go convert between this type and stdlib ecdsa keys; the engine
// never interprets a textual key representation.
type Key struct {
	Kty int64
	Kid []byte
	Alg int64

	// Symmetric
	K []byte

	// EC2
	Crv int64
	X   []byte
	Y   []byte
	D   []byte
}

// SymmetricKeyBytes returns k.K and an error if this is not a usable
// symmetric key.
func (k *Key) SymmetricKeyBytes() ([]byte, error) {
	if k == nil || k.Kty != KeyTypeSymmetric || len(k.K) == 0 {
		return nil, fmt.Errorf("%w: not a symmetric key", ErrInvalidParameter)
	}
	return k.K, nil
}

// RequireKeyBytes validates a symmetric key's length against the bits the
// algorithm registry expects: a wrong-length k fails with
// ErrInvalidParameter rather than silently truncating or padding.
func RequireKeyBytes(k []byte, bits int) error {
	want := (bits + 7) / 8
	if len(k) != want {
		return fmt.Errorf("%w: expected %d-byte key, got %d", ErrInvalidParameter, want, len(k))
	}
	return nil
}

// NewSymmetricKey wraps raw key bytes as a COSE_Key of type Symmetric.
func NewSymmetricKey(k []byte) *Key {
	return &Key{Kty: KeyTypeSymmetric, K: append([]byte(nil), k...)}
}

// NewEC2Key wraps EC2 coordinates (and optionally the private scalar d) as
// a COSE_Key.
func NewEC2Key(crv int64, x, y, d []byte) *Key {
	return &Key{Kty: KeyTypeEC2, Crv: crv, X: x, Y: y, D: d}
}

// MarshalMap renders the Key as the int64-keyed CBOR map this package
// describes, suitable for canonicalEncMode.Marshal.
func (k *Key) MarshalMap() map[int64]interface{} {
	m := map[int64]interface{}{KeyLabelKty: k.Kty}
	if len(k.Kid) > 0 {
		m[KeyLabelKid] = k.Kid
	}
	if k.Alg != 0 {
		m[KeyLabelAlg] = k.Alg
	}
	switch k.Kty {
	case KeyTypeSymmetric:
		m[KeyLabelSymmetricK] = k.K
	case KeyTypeEC2:
		m[KeyLabelEC2Crv] = k.Crv
		m[KeyLabelEC2X] = k.X
		if len(k.Y) > 0 {
			m[KeyLabelEC2Y] = k.Y
		}
		if len(k.D) > 0 {
			m[KeyLabelEC2D] = k.D
		}
	}
	return m
}

// KeyFromMap reads a decoded CBOR map back into a Key, the inverse of
// MarshalMap.
func KeyFromMap(m map[int64]interface{}) (*Key, error) {
	k := &Key{}
	kty, err := toInt64(m[KeyLabelKty])
	if err != nil {
		return nil, fmt.Errorf("%w: COSE_Key missing kty", ErrInvalidParameter)
	}
	k.Kty = kty

	if v, ok := m[KeyLabelKid]; ok {
		if b, ok := v.([]byte); ok {
			k.Kid = b
		}
	}
	if v, ok := m[KeyLabelAlg]; ok {
		if n, err := toInt64(v); err == nil {
			k.Alg = n
		}
	}

	switch kty {
	case KeyTypeSymmetric:
		b, ok := m[KeyLabelSymmetricK].([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: symmetric COSE_Key missing k", ErrInvalidParameter)
		}
		k.K = b
	case KeyTypeEC2:
		crv, err := toInt64(m[KeyLabelEC2Crv])
		if err != nil {
			return nil, fmt.Errorf("%w: EC2 COSE_Key missing crv", ErrInvalidParameter)
		}
		k.Crv = crv
		if x, ok := m[KeyLabelEC2X].([]byte); ok {
			k.X = x
		}
		if y, ok := m[KeyLabelEC2Y].([]byte); ok {
			k.Y = y
		}
		if d, ok := m[KeyLabelEC2D].([]byte); ok {
			k.D = d
		}
	}
	return k, nil
}
