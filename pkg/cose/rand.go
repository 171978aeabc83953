package cose

import (
	"crypto/rand"
	"io"
)

// randReader is the CSPRNG source for ephemeral key generation and
// CEK sampling ("sample a fresh CEK from the CSPRNG"
// rule). A package variable rather than a direct crypto/rand.Reader
// reference so a test can substitute a deterministic reader (no test in
// this package currently does).
var randReader = func() io.Reader { return rand.Reader }
