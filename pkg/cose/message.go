package cose

import (
	"fmt"
	"sync/atomic"
)

// State is the per-message lifecycle described in :
// Constructing -> Finalized -> Released.
type State int32

const (
	StateConstructing State = iota
	StateFinalized
	StateReleased
)

// core is the skeleton shared by every message kind: a header bucket, a
// body buffer, external AAD bytes, and the lifecycle/refcount bookkeeping
// below. Every exported message type (Enveloped, Encrypt0, Mac, Mac0,
// Signed, Sign0, Recipient, Signer1) embeds *core rather than duplicating
// these fields.
type core struct {
	headers *HeaderBucket

	body     []byte // content, payload, or wrapped-CEK depending on variant
	external []byte // do-not-send "external_aad" bytes
	tagged   bool   // emit the CBOR tag (16/17/18/96/97/98) wrapper on encode

	state int32 // atomic State value

	refcount int32 // starts at 1 on Init/InitFromCBOR; Free decrements
}

func newCore() *core {
	return &core{
		headers:  NewHeaderBucket(),
		state:    int32(StateConstructing),
		refcount: 1,
	}
}

// retain increments the refcount; used when a parent attaches a child
// Recipient/Signer that may also be held by an external handle, since a
// parent message shared-owns each child it holds.
func (c *core) retain() {
	atomic.AddInt32(&c.refcount, 1)
}

// release decrements the refcount and reports whether this was the final
// release (refcount reached zero), at which point the caller should drop
// all references to allow GC.
func (c *core) release() bool {
	return atomic.AddInt32(&c.refcount, -1) == 0
}

// checkMutable fails with ErrInvalidParameter once the message has been
// Finalized: header mutations after Finalized fail.
func (c *core) checkMutable() error {
	switch State(atomic.LoadInt32(&c.state)) {
	case StateFinalized:
		return fmt.Errorf("%w: message is finalized", ErrInvalidParameter)
	case StateReleased:
		return fmt.Errorf("%w: message is released", ErrInvalidParameter)
	default:
		return nil
	}
}

func (c *core) finalize() {
	atomic.StoreInt32(&c.state, int32(StateFinalized))
}

// SetPlaintext/SetPayload/SetExternalAAD are implemented per variant (the
// parameter plays a different wire role -- plaintext to encrypt vs. bytes
// to MAC/sign -- even though the storage is identical), so they live on the
// concrete message types in enveloped.go, mac_message.go and signed.go; this
// file only hosts the shared mechanics those methods call into.

// setBody and setExternal are the shared implementations those per-variant
// setters delegate to.
func (c *core) setBody(b []byte) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	c.body = append([]byte(nil), b...)
	return nil
}

func (c *core) setExternal(b []byte) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	c.external = append([]byte(nil), b...)
	return nil
}

// SetTagged controls whether encoding wraps the message in its RFC 9052
// CBOR tag (16 Encrypt0, 96 Encrypt, 17 Mac0, 97 Mac, 18 Sign1, 98 Sign).
// The engine emits untagged output by default; call SetTagged(true) before
// Encrypt/Tag/Sign/Finalize to request the tagged form.
func (c *core) SetTagged(tagged bool) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	c.tagged = tagged
	return nil
}

// HeaderPut exposes HeaderBucket.Put, refusing mutation once Finalized.
func (c *core) HeaderPut(key int64, value interface{}, bucket Bucket) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	return c.headers.Put(key, value, bucket)
}

// HeaderGet exposes HeaderBucket.Get with a bucket bitmask so callers can
// query protected, unprotected, or both in one call.
func (c *core) HeaderGet(key int64, mask Bucket) (interface{}, bool) {
	return c.headers.Get(key, mask)
}
