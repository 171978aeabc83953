package cose_test

import (
	"errors"
	"testing"

	"github.com/tradeverifyd/cose-engine/pkg/cose"
)

func TestHeaderBucket_PutGet(t *testing.T) {
	h := cose.NewHeaderBucket()

	if err := h.Put(cose.HeaderLabelAlg, int64(cose.AlgorithmES256), cose.BucketProtected); err != nil {
		t.Fatalf("put alg: %v", err)
	}

	v, ok := h.Get(cose.HeaderLabelAlg, cose.BucketBoth)
	if !ok {
		t.Fatal("expected alg to be found")
	}
	if v.(int64) != int64(cose.AlgorithmES256) {
		t.Errorf("unexpected alg value: %v", v)
	}

	if _, ok := h.Get(cose.HeaderLabelAlg, cose.BucketUnprotected); ok {
		t.Error("alg stored in protected bucket should not be visible under unprotected-only mask")
	}
}

func TestHeaderBucket_AtMostOneBucket(t *testing.T) {
	h := cose.NewHeaderBucket()

	if err := h.Put(cose.HeaderLabelKid, []byte("key-1"), cose.BucketProtected); err != nil {
		t.Fatalf("unexpected error on first put: %v", err)
	}

	err := h.Put(cose.HeaderLabelKid, []byte("key-2"), cose.BucketUnprotected)
	if err == nil {
		t.Fatal("expected error putting the same key into a second bucket")
	}
	if !errors.Is(err, cose.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestHeaderBucket_PutReplacesSameBucket(t *testing.T) {
	h := cose.NewHeaderBucket()
	if err := h.Put(cose.HeaderLabelKid, []byte("key-1"), cose.BucketProtected); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := h.Put(cose.HeaderLabelKid, []byte("key-2"), cose.BucketProtected); err != nil {
		t.Fatalf("replace put into same bucket should succeed: %v", err)
	}
	v, ok := h.GetBytes(cose.HeaderLabelKid, cose.BucketBoth)
	if !ok || string(v) != "key-2" {
		t.Errorf("expected replaced value key-2, got %q (ok=%v)", v, ok)
	}
}

func TestHeaderBucket_GetStrict(t *testing.T) {
	h := cose.NewHeaderBucket()
	if _, err := h.GetStrict(cose.HeaderLabelKid, cose.BucketBoth); !errors.Is(err, cose.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := h.Put(cose.HeaderLabelKid, []byte("k"), cose.BucketUnprotected); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, err := h.GetStrict(cose.HeaderLabelKid, cose.BucketBoth)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(v.([]byte)) != "k" {
		t.Errorf("unexpected value: %v", v)
	}
}

func TestHeaderBucket_EmptyProtectedIsZeroLength(t *testing.T) {
	h := cose.NewHeaderBucket()
	b, err := h.EncodeProtected()
	if err != nil {
		t.Fatalf("encode protected: %v", err)
	}
	if len(b) != 0 {
		t.Errorf("expected zero-length protected bstr, got %d bytes", len(b))
	}
}

func TestHeaderBucket_IsDirectLike(t *testing.T) {
	h := cose.NewHeaderBucket()
	if h.IsDirectLike() {
		t.Error("empty header bucket should not report direct-like")
	}

	if err := h.Put(cose.HeaderLabelAlg, int64(cose.AlgorithmDirect), cose.BucketUnprotected); err != nil {
		t.Fatalf("put: %v", err)
	}
	if !h.IsDirectLike() {
		t.Error("alg=Direct should report direct-like")
	}
}

func TestHeaderBucket_IsDirectLikeRecomputesLive(t *testing.T) {
	// Per the Open Question resolution, IsDirectLike must recompute from the
	// live alg value on every call rather than trust a cached flag from an
	// earlier Put.
	h := cose.NewHeaderBucket()
	if err := h.Put(cose.HeaderLabelAlg, int64(cose.AlgorithmDirect), cose.BucketUnprotected); err != nil {
		t.Fatalf("put direct: %v", err)
	}
	if !h.IsDirectLike() {
		t.Fatal("expected direct-like immediately after put")
	}

	h2 := cose.NewHeaderBucket()
	if err := h2.Put(cose.HeaderLabelAlg, int64(cose.AlgorithmA128KW), cose.BucketUnprotected); err != nil {
		t.Fatalf("put A128KW: %v", err)
	}
	if h2.IsDirectLike() {
		t.Error("A128KW should never report direct-like")
	}
}

func TestHeaderBucket_AlgUnknown(t *testing.T) {
	h := cose.NewHeaderBucket()
	if err := h.Put(cose.HeaderLabelAlg, int64(99999), cose.BucketProtected); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := h.Alg(); !errors.Is(err, cose.ErrUnknownAlgorithm) {
		t.Errorf("expected ErrUnknownAlgorithm, got %v", err)
	}
}
