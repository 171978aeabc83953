package cose

import (
	"errors"
	"fmt"
	"io"
)

// Recipient is a COSE_recipient: its own header bucket plus a body that,
// depending on family, holds a wrapped CEK, an empty byte string (direct),
// or nothing at all (ECDH-ES with the ephemeral key carried in headers).
// Recipients recurse: a Recipient's own body may itself be protected by a
// further layer of Recipients (recipient tree).
type Recipient struct {
	*core
	recipients []*Recipient
}

// NewRecipient allocates an empty, Constructing recipient.
func NewRecipient() *Recipient {
	return &Recipient{core: newCore()}
}

// SetCiphertext stores the wrapped-CEK bytes (key-wrap families) or the
// empty byte string (direct families) that is this recipient's body on the
// wire.
func (r *Recipient) SetCiphertext(b []byte) error { return r.setBody(b) }

// AddRecipient attaches a nested Recipient (layered key wrap), retaining a
// shared reference the way a parent Message retains its own top-level
// Recipients.
func (r *Recipient) AddRecipient(child *Recipient) {
	child.retain()
	r.recipients = append(r.recipients, child)
}

// Recipients returns the nested recipient list.
func (r *Recipient) Recipients() []*Recipient { return r.recipients }

// zeroize overwrites a buffer with 0xFF before it is dropped: CEKs, KEKs,
// and derived secrets are wiped with 0xFF, not the more common zero-fill,
// on every exit path.
func zeroize(b []byte) {
	for i := range b {
		b[i] = 0xFF
	}
}

// RecipientEngine resolves the content-encryption key for an Enveloped,
// Mac, or Signed-with-recipients message, given the message's own context
// AAD inputs and a key-provider callback the caller uses to hand back
// whatever private/static key material a given recipient's kid resolves to
// ("the engine never has its own keystore").
type RecipientEngine struct {
	// ResolveKey is invoked once per Direct-like or key-wrap recipient leaf
	// with that recipient's header bucket, and must return the recipient's
	// own secret/private key (the KEK input, or the direct CEK itself for
	// FamilyDirect). Returning ErrNoRecipientFound causes that recipient to
	// be skipped rather than aborting the whole resolution, so multi-
	// recipient messages addressed to several parties succeed as long as
	// one recipient the caller holds a key for is present.
	ResolveKey func(h *HeaderBucket) (*Key, error)

	// EnclosingProtected supplies the protected-header bytes of the structure level
	// above a given recipient, used as ProtectedBytes when building that
	// recipient's COSE_KDF_Context ("context binds to the
	// enclosing structure's protected headers, not the recipient's own").
	EnclosingProtected []byte
}

// ResolveCEK walks top, the top-level recipient list of an Enveloped/Mac
// message, and returns the resolved content-encryption key. keyBits is the
// target CEK length the caller's content algorithm expects.
func (e *RecipientEngine) ResolveCEK(top []*Recipient, keyBits int) ([]byte, error) {
	if len(top) == 0 {
		return nil, fmt.Errorf("%w: no recipients to resolve a CEK from", ErrNoRecipientFound)
	}

	if err := checkRecipientHomogeneity(top); err != nil {
		return nil, err
	}

	// A recipient is skipped -- tried next instead of aborting the whole
	// resolution -- only when ResolveKey itself reports ErrNoRecipientFound
	// (the caller holds no key for that recipient, e.g. addressed to a
	// different party). Any other failure -- a structurally wrong key
	// length, an unknown algorithm -- is a real error and must propagate
	// rather than being swallowed into a misleading "no recipient found".
	for _, r := range top {
		cek, err := e.resolveOne(r, keyBits)
		if err == nil {
			return cek, nil
		}
		if errors.Is(err, ErrNoRecipientFound) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("%w: no recipient could be resolved with the supplied keys", ErrNoRecipientFound)
}

// checkRecipientHomogeneity enforces that a recipient list never mixes
// direct-like recipients with key-wrap recipients, and carries at most one
// direct-like recipient. It is called on both the decrypt/verify side
// (ResolveCEK, above) and the encrypt/tag side (Enveloped.Encrypt,
// Mac.Tag), so the invariant holds for a message this engine builds as well
// as one it merely parses.
func checkRecipientHomogeneity(top []*Recipient) error {
	directCount := 0
	wrapCount := 0
	for _, r := range top {
		rec, err := r.headers.Alg()
		if err != nil {
			continue
		}
		if IsDirectLike(rec.Family) {
			directCount++
		} else {
			wrapCount++
		}
	}
	if directCount > 0 && wrapCount > 0 {
		return fmt.Errorf("%w: direct and key-wrap recipients cannot be mixed in one message", ErrInvalidParameter)
	}
	if directCount > 1 {
		return fmt.Errorf("%w: at most one direct recipient is permitted", ErrInvalidParameter)
	}
	return nil
}

// anyDirectLike reports whether top contains a direct-like recipient, used
// on the encrypt/tag side to refuse generating a random CEK that a
// direct-like recipient could never reproduce on decrypt.
func anyDirectLike(top []*Recipient) bool {
	for _, r := range top {
		rec, err := r.headers.Alg()
		if err != nil {
			continue
		}
		if IsDirectLike(rec.Family) {
			return true
		}
	}
	return false
}

// resolveOne resolves a single top-level recipient to a CEK, dispatching on
// its algorithm family.
func (e *RecipientEngine) resolveOne(r *Recipient, cekBits int) ([]byte, error) {
	rec, err := r.headers.Alg()
	if err != nil {
		return nil, err
	}

	switch rec.Family {
	case FamilyDirect:
		return e.resolveDirect(r, cekBits)
	case FamilyDirectHKDFHMAC:
		return e.resolveDirectHKDF(r, rec, cekBits, hkdfHMACAdapter(rec.HashBits))
	case FamilyDirectHKDFAES:
		return e.resolveDirectHKDF(r, rec, cekBits, hkdfAESAdapter(rec.KeyBits))
	case FamilyAESKW:
		return e.resolveKeyWrap(r, rec, cekBits)
	case FamilyECDHESHKDF, FamilyECDHSSHKDF:
		return e.resolveECDHDirect(r, rec, cekBits)
	case FamilyECDHESKW, FamilyECDHSSKW:
		return e.resolveECDHKeyWrap(r, rec, cekBits)
	default:
		return nil, fmt.Errorf("%w: recipient algorithm family %d cannot resolve a CEK", ErrUnknownAlgorithm, rec.Family)
	}
}

// resolveDirect implements the Direct family: the recipient's symmetric key
// IS the CEK, so its length must equal cekBits/8 exactly (spec.md
// "a caller-supplied CEK for a MAC or Enveloped message has length exactly
// ceil(alg-key-bits / 8)").
func (e *RecipientEngine) resolveDirect(r *Recipient, cekBits int) ([]byte, error) {
	key, err := e.ResolveKey(r.headers)
	if err != nil {
		return nil, err
	}
	k, err := key.SymmetricKeyBytes()
	if err != nil {
		return nil, err
	}
	if err := RequireKeyBytes(k, cekBits); err != nil {
		return nil, err
	}
	return k, nil
}

type kdfFunc func(secret, salt, info []byte, length int) ([]byte, error)

func hkdfHMACAdapter(hashBits int) kdfFunc {
	return func(secret, salt, info []byte, length int) ([]byte, error) {
		return hkdfHMAC(hashBits, secret, salt, info, length)
	}
}

func hkdfAESAdapter(keyBits int) kdfFunc {
	return func(secret, salt, info []byte, length int) ([]byte, error) {
		return hkdfAES(keyBits, secret, salt, info, length)
	}
}

// resolveDirectHKDF implements Direct-HKDF-HMAC-SHA-{256,512} and
// Direct-HKDF-AES-{128,256}: the shared secret (the recipient's own key, no
// ECDH step) is run through HKDF with a COSE_KDF_Context built from this
// recipient's own header bucket, since there is no enclosing-vs-recipient
// distinction for a non-ECDH direct-KDF recipient.
func (e *RecipientEngine) resolveDirectHKDF(r *Recipient, rec AlgRecord, cekBits int, kdf kdfFunc) ([]byte, error) {
	key, err := e.ResolveKey(r.headers)
	if err != nil {
		return nil, err
	}
	secret, err := key.SymmetricKeyBytes()
	if err != nil {
		return nil, err
	}

	salt, _ := r.headers.GetBytes(HeaderLabelSalt, BucketDoNotSend|BucketBoth)
	ctxBytes, err := e.kdfContextFor(r, rec.Alg, cekBits)
	if err != nil {
		return nil, err
	}

	return kdf(secret, salt, ctxBytes, cekBits/8)
}

// resolveKeyWrap implements A128KW/A192KW/A256KW: unwrap this recipient's
// body as the CEK using the resolved symmetric KEK.
func (e *RecipientEngine) resolveKeyWrap(r *Recipient, rec AlgRecord, cekBits int) ([]byte, error) {
	key, err := e.ResolveKey(r.headers)
	if err != nil {
		return nil, err
	}
	kek, err := key.SymmetricKeyBytes()
	if err != nil {
		return nil, err
	}
	defer zeroize(kek)

	cek, err := aesKeyUnwrap(kek, r.body)
	if err != nil {
		return nil, err
	}
	if err := RequireKeyBytes(cek, cekBits); err != nil {
		zeroize(cek)
		return nil, err
	}
	return cek, nil
}

// resolveECDHDirect implements ECDH-ES/SS-HKDF-{256,512}: agree on Z with
// the peer's ephemeral or static key carried in this recipient's headers,
// then HKDF it directly into the CEK.
func (e *RecipientEngine) resolveECDHDirect(r *Recipient, rec AlgRecord, cekBits int) ([]byte, error) {
	z, err := e.agree(r, rec)
	if err != nil {
		return nil, err
	}
	defer zeroize(z)

	ctxBytes, err := e.kdfContextFor(r, rec.Alg, cekBits)
	if err != nil {
		return nil, err
	}
	return hkdfHMAC(rec.HashBits, z, nil, ctxBytes, cekBits/8)
}

// resolveECDHKeyWrap implements ECDH-ES/SS-*-KW: agree on Z, HKDF it into a
// KEK of the wrap algorithm's key size, then unwrap this recipient's body.
func (e *RecipientEngine) resolveECDHKeyWrap(r *Recipient, rec AlgRecord, cekBits int) ([]byte, error) {
	z, err := e.agree(r, rec)
	if err != nil {
		return nil, err
	}
	defer zeroize(z)

	ctxBytes, err := e.kdfContextFor(r, rec.Alg, rec.KeyBits)
	if err != nil {
		return nil, err
	}
	kek, err := hkdfHMAC(256, z, nil, ctxBytes, rec.KeyBits/8)
	if err != nil {
		return nil, err
	}
	defer zeroize(kek)

	cek, err := aesKeyUnwrap(kek, r.body)
	if err != nil {
		return nil, err
	}
	if err := RequireKeyBytes(cek, cekBits); err != nil {
		zeroize(cek)
		return nil, err
	}
	return cek, nil
}

// agree resolves the ECDH shared secret for a recipient: the peer's static
// key (ResolveKey) against either the sender's ephemeral key (ES variants,
// carried in the recipient's own unprotected headers) or the sender's
// static key (SS variants, resolved the same way as the receiver's).
func (e *RecipientEngine) agree(r *Recipient, rec AlgRecord) ([]byte, error) {
	receiverKey, err := e.ResolveKey(r.headers)
	if err != nil {
		return nil, err
	}
	if receiverKey.Kty != KeyTypeEC2 {
		return nil, fmt.Errorf("%w: ECDH recipient requires an EC2 key", ErrInvalidParameter)
	}

	peerLabel := HeaderLabelEphemeralKey
	if rec.Family == FamilyECDHSSHKDF || rec.Family == FamilyECDHSSKW {
		peerLabel = HeaderLabelStaticKey
	}
	v, ok := r.headers.Get(int64(peerLabel), BucketBoth)
	if !ok {
		return nil, fmt.Errorf("%w: ECDH recipient missing sender key header", ErrInvalidParameter)
	}
	m, ok := v.(map[int64]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: ECDH sender key header is not a COSE_Key map", ErrInvalidParameter)
	}
	peerKey, err := KeyFromMap(m)
	if err != nil {
		return nil, err
	}

	return ecdhSharedSecret(receiverKey, peerKey)
}

// kdfContextFor builds the COSE_KDF_Context for recipient r, pulling
// PartyU/PartyV fields from r's own header bucket and using
// e.EnclosingProtected as the ProtectedBytes field, since the context
// binds to the structure the recipient sits inside, not the recipient's own
// (generally empty) protected bucket.
func (e *RecipientEngine) kdfContextFor(r *Recipient, alg int64, keyDataLengthBits int) ([]byte, error) {
	partyU := partyInfoFromHeaders(r.headers, HeaderLabelPartyUIdentity, HeaderLabelPartyUNonce, HeaderLabelPartyUOther)
	partyV := partyInfoFromHeaders(r.headers, HeaderLabelPartyVIdentity, HeaderLabelPartyVNonce, HeaderLabelPartyVOther)

	ctx := KDFContext{
		AlgorithmID:       alg,
		PartyU:            partyU,
		PartyV:            partyV,
		KeyDataLengthBits: uint(keyDataLengthBits),
		ProtectedBytes:    e.EnclosingProtected,
	}
	return ctx.Build()
}

// BuildDirectRecipient constructs a Direct (alg -6) recipient: empty body,
// protected headers empty, alg in the unprotected bucket (the common
// convention this family uses since there is nothing to protect).
func BuildDirectRecipient() (*Recipient, error) {
	r := NewRecipient()
	if err := r.HeaderPut(HeaderLabelAlg, int64(AlgorithmDirect), BucketUnprotected); err != nil {
		return nil, err
	}
	if err := r.SetCiphertext(nil); err != nil {
		return nil, err
	}
	return r, nil
}

// BuildKeyWrapRecipient wraps cek under kek with an AES key-wrap algorithm
// and returns the resulting recipient, ready to attach to an Enveloped or
// Mac message's recipient list.
func BuildKeyWrapRecipient(alg int64, kek, cek []byte) (*Recipient, error) {
	rec, err := LookupAlgorithm(alg)
	if err != nil {
		return nil, err
	}
	if rec.Family != FamilyAESKW {
		return nil, fmt.Errorf("%w: algorithm %d is not an AES key-wrap family", ErrInvalidParameter, alg)
	}
	if err := RequireKeyBytes(kek, rec.KeyBits); err != nil {
		return nil, err
	}

	wrapped, err := aesKeyWrap(kek, cek)
	if err != nil {
		return nil, err
	}

	r := NewRecipient()
	if err := r.HeaderPut(HeaderLabelAlg, alg, BucketUnprotected); err != nil {
		return nil, err
	}
	if err := r.SetCiphertext(wrapped); err != nil {
		return nil, err
	}
	return r, nil
}

// BuildDirectHKDFRecipient constructs a Direct-HKDF-HMAC-SHA-{256,512} or
// Direct-HKDF-AES-{128,256} recipient: empty body, alg
// in the unprotected bucket, salt (if non-nil) carried in the recipient's
// do-not-send bucket since it is an input to the KDF but never needs to
// travel on the wire when the peer already holds it out of band.
func BuildDirectHKDFRecipient(alg int64, salt []byte) (*Recipient, error) {
	rec, err := LookupAlgorithm(alg)
	if err != nil {
		return nil, err
	}
	if rec.Family != FamilyDirectHKDFHMAC && rec.Family != FamilyDirectHKDFAES {
		return nil, fmt.Errorf("%w: algorithm %d is not a Direct-HKDF family", ErrInvalidParameter, alg)
	}

	r := NewRecipient()
	if err := r.HeaderPut(HeaderLabelAlg, alg, BucketUnprotected); err != nil {
		return nil, err
	}
	if len(salt) > 0 {
		if err := r.HeaderPut(HeaderLabelSalt, salt, BucketDoNotSend); err != nil {
			return nil, err
		}
	}
	if err := r.SetCiphertext(nil); err != nil {
		return nil, err
	}
	return r, nil
}

// BuildECDHDirectRecipient constructs an ECDH-ES-HKDF-{256,512} or
// ECDH-SS-HKDF-{256,512} recipient: no wrapped CEK, just the sender's
// ephemeral (ES) or static (SS) EC key carried in the unprotected bucket so
// the receiver can reproduce the agreement. senderStatic
// is ignored for the ES family (a fresh ephemeral key is always minted) and
// required for the SS family.
func BuildECDHDirectRecipient(alg int64, peerPublic *Key, senderStatic *Key) (*Recipient, error) {
	rec, err := LookupAlgorithm(alg)
	if err != nil {
		return nil, err
	}
	if rec.Family != FamilyECDHESHKDF && rec.Family != FamilyECDHSSHKDF {
		return nil, fmt.Errorf("%w: algorithm %d is not an ECDH-HKDF family", ErrInvalidParameter, alg)
	}

	r := NewRecipient()
	if err := r.HeaderPut(HeaderLabelAlg, alg, BucketUnprotected); err != nil {
		return nil, err
	}
	if _, err := attachSenderKey(r, rec, peerPublic, senderStatic); err != nil {
		return nil, err
	}
	if err := r.SetCiphertext(nil); err != nil {
		return nil, err
	}
	return r, nil
}

// BuildECDHKeyWrapRecipient constructs an ECDH-ES-*-KW or ECDH-SS-*-KW
// recipient: agree on Z against peerPublic, HKDF it into a KEK of the wrap
// algorithm's key size, and wrap cek under that KEK.
func BuildECDHKeyWrapRecipient(alg int64, peerPublic, senderStatic *Key, enclosingProtected, cek []byte) (*Recipient, error) {
	rec, err := LookupAlgorithm(alg)
	if err != nil {
		return nil, err
	}
	if rec.Family != FamilyECDHESKW && rec.Family != FamilyECDHSSKW {
		return nil, fmt.Errorf("%w: algorithm %d is not an ECDH key-wrap family", ErrInvalidParameter, alg)
	}

	r := NewRecipient()
	if err := r.HeaderPut(HeaderLabelAlg, alg, BucketUnprotected); err != nil {
		return nil, err
	}
	senderKey, err := attachSenderKey(r, rec, peerPublic, senderStatic)
	if err != nil {
		return nil, err
	}

	z, err := ecdhSharedSecret(senderKey, peerPublic)
	if err != nil {
		return nil, err
	}
	defer zeroize(z)

	ctx := KDFContext{
		AlgorithmID:       alg,
		PartyU:            partyInfoFromHeaders(r.headers, HeaderLabelPartyUIdentity, HeaderLabelPartyUNonce, HeaderLabelPartyUOther),
		PartyV:            partyInfoFromHeaders(r.headers, HeaderLabelPartyVIdentity, HeaderLabelPartyVNonce, HeaderLabelPartyVOther),
		KeyDataLengthBits: uint(rec.KeyBits),
		ProtectedBytes:    enclosingProtected,
	}
	ctxBytes, err := ctx.Build()
	if err != nil {
		return nil, err
	}

	kek, err := hkdfHMAC(256, z, nil, ctxBytes, rec.KeyBits/8)
	if err != nil {
		return nil, err
	}
	defer zeroize(kek)

	wrapped, err := aesKeyWrap(kek, cek)
	if err != nil {
		return nil, err
	}
	if err := r.SetCiphertext(wrapped); err != nil {
		return nil, err
	}
	return r, nil
}

// attachSenderKey mints a fresh ephemeral key (ES family) or validates and
// reuses senderStatic (SS family), stores its public half in r's
// unprotected bucket under the header label the peer expects it at, and
// returns the private key to agree with.
func attachSenderKey(r *Recipient, rec AlgRecord, peerPublic, senderStatic *Key) (*Key, error) {
	if peerPublic == nil || peerPublic.Kty != KeyTypeEC2 {
		return nil, fmt.Errorf("%w: ECDH recipient requires an EC2 peer key", ErrInvalidParameter)
	}

	isStatic := rec.Family == FamilyECDHSSHKDF || rec.Family == FamilyECDHSSKW
	label := HeaderLabelEphemeralKey
	senderKey := senderStatic
	if isStatic {
		label = HeaderLabelStaticKey
		if senderKey == nil {
			return nil, fmt.Errorf("%w: ECDH-SS recipient requires a sender static key", ErrInvalidParameter)
		}
	} else {
		var err error
		senderKey, err = generateEphemeralKey(peerPublic.Crv)
		if err != nil {
			return nil, err
		}
	}

	pub := &Key{Kty: KeyTypeEC2, Crv: senderKey.Crv, X: senderKey.X, Y: senderKey.Y}
	if err := r.HeaderPut(int64(label), pub.MarshalMap(), BucketUnprotected); err != nil {
		return nil, err
	}
	return senderKey, nil
}

// GenerateCEK samples a fresh CSPRNG content-encryption key of keyBits
// length, the rule applied when a message has no direct-like recipient.
func GenerateCEK(keyBits int) ([]byte, error) {
	buf := make([]byte, keyBits/8)
	if _, err := io.ReadFull(randReader(), buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFail, err)
	}
	return buf, nil
}
