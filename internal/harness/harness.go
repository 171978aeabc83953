// Package harness is the JSON control-file driver for the CLI test
// harness described in the engine's design notes: it is not part of the
// COSE core (pkg/cose), it only wires control-file fields onto pkg/cose's
// public API the same way a conformance-test runner would.
package harness

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tradeverifyd/cose-engine/pkg/cose"
)

// Variant names accepted in a control file's "variant" field.
const (
	VariantEncrypt0  = "encrypt0"
	VariantEnveloped = "enveloped"
	VariantMac0      = "mac0"
	VariantMac       = "mac"
	VariantSign0     = "sign0"
	VariantSigned    = "signed"
)

// Recipient describes one top-level recipient a control file attaches to
// an Enveloped or Mac message: either a Direct recipient (Alg -6, KeyHex as
// the CEK/MAC key) or an AES-KW recipient (Alg + KeyHex as the KEK).
type Recipient struct {
	Alg    int64  `json:"alg"`
	KeyHex string `json:"key_hex"`
}

// Signer describes one signer's key material for a Signed/Sign0 control
// file, hex-encoded per COSE_Key's EC2 field layout.
type Signer struct {
	Alg  int64  `json:"alg"`
	Crv  int64  `json:"crv"`
	DHex string `json:"d_hex"`
	XHex string `json:"x_hex"`
	YHex string `json:"y_hex"`
}

// ControlFile is the JSON document the `run` subcommand consumes. Fields
// not relevant to a given variant/operation are simply left unset; each
// field name matches the wire concept it feeds (Init/SetContent/HeaderPut/
// Encode in pkg/cose's API).
type ControlFile struct {
	Variant   string `json:"variant"`
	Operation string `json:"operation"`

	Protected   map[string]int64 `json:"protected"`
	Unprotected map[string]int64 `json:"unprotected"`

	IVHex       string `json:"iv_hex"`
	ExternalHex string `json:"external_hex"`
	PayloadHex  string `json:"payload_hex"`
	KeyHex      string `json:"key_hex"`

	Recipients []Recipient `json:"recipients,omitempty"`
	Signers    []Signer    `json:"signers,omitempty"`

	// InputHex carries the encoded message being decrypted/verified;
	// present only for decode-direction operations.
	InputHex string `json:"input_hex"`
}

// Result is what `run` prints (base64- or hex-encoded per config, by the
// CLI layer): the encoded message for an encode-direction operation, or the
// recovered payload/plaintext for a decode-direction one.
type Result struct {
	OutputBytes []byte
	Payload     []byte
}

// LoadControlFile reads and parses a JSON control file from path.
func LoadControlFile(path string) (*ControlFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read control file: %w", err)
	}
	var cf ControlFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse control file: %w", err)
	}
	return &cf, nil
}

func hexField(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex field %q", cose.ErrInvalidParameter, s)
	}
	return b, nil
}

// Run dispatches a parsed control file to the pkg/cose operation it
// describes and returns the encoded bytes or recovered payload.
func Run(cf *ControlFile) (*Result, error) {
	switch cf.Variant {
	case VariantEncrypt0:
		return runEncrypt0(cf)
	case VariantEnveloped:
		return runEnveloped(cf)
	case VariantMac0:
		return runMac0(cf)
	case VariantMac:
		return runMac(cf)
	case VariantSign0:
		return runSign0(cf)
	case VariantSigned:
		return runSigned(cf)
	default:
		return nil, fmt.Errorf("%w: unknown variant %q", cose.ErrInvalidParameter, cf.Variant)
	}
}

func putHeaders(put func(key int64, value interface{}, bucket cose.Bucket) error, fields map[string]int64, bucket cose.Bucket) error {
	for k, v := range fields {
		label, err := parseLabel(k)
		if err != nil {
			return err
		}
		if err := put(label, v, bucket); err != nil {
			return err
		}
	}
	return nil
}

func parseLabel(s string) (int64, error) {
	var n int64
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("%w: invalid header label %q", cose.ErrInvalidParameter, s)
	}
	return n, nil
}

func runEncrypt0(cf *ControlFile) (*Result, error) {
	key, err := hexField(cf.KeyHex)
	if err != nil {
		return nil, err
	}

	if cf.Operation == "decrypt" {
		input, err := hexField(cf.InputHex)
		if err != nil {
			return nil, err
		}
		external, err := hexField(cf.ExternalHex)
		if err != nil {
			return nil, err
		}
		plaintext, err := cose.DecryptEncrypt0(input, key, external)
		if err != nil {
			return nil, err
		}
		return &Result{Payload: plaintext}, nil
	}

	m := cose.NewEncrypt0()
	if err := putHeaders(m.HeaderPut, cf.Protected, cose.BucketProtected); err != nil {
		return nil, err
	}
	if err := putHeaders(m.HeaderPut, cf.Unprotected, cose.BucketUnprotected); err != nil {
		return nil, err
	}
	iv, err := hexField(cf.IVHex)
	if err != nil {
		return nil, err
	}
	if iv != nil {
		if err := m.HeaderPut(cose.HeaderLabelIV, iv, cose.BucketUnprotected); err != nil {
			return nil, err
		}
	}
	payload, err := hexField(cf.PayloadHex)
	if err != nil {
		return nil, err
	}
	if err := m.SetPlaintext(payload); err != nil {
		return nil, err
	}
	if external, err := hexField(cf.ExternalHex); err != nil {
		return nil, err
	} else if external != nil {
		if err := m.SetExternalAAD(external); err != nil {
			return nil, err
		}
	}

	out, err := m.Encrypt(key)
	if err != nil {
		return nil, err
	}
	return &Result{OutputBytes: out}, nil
}

func runEnveloped(cf *ControlFile) (*Result, error) {
	if cf.Operation == "decrypt" {
		input, err := hexField(cf.InputHex)
		if err != nil {
			return nil, err
		}
		external, err := hexField(cf.ExternalHex)
		if err != nil {
			return nil, err
		}
		engine := &cose.RecipientEngine{ResolveKey: keyResolverFor(cf.Recipients)}
		plaintext, err := cose.DecryptEnveloped(input, engine, external)
		if err != nil {
			return nil, err
		}
		return &Result{Payload: plaintext}, nil
	}

	m := cose.NewEnveloped()
	if err := putHeaders(m.HeaderPut, cf.Protected, cose.BucketProtected); err != nil {
		return nil, err
	}
	if err := putHeaders(m.HeaderPut, cf.Unprotected, cose.BucketUnprotected); err != nil {
		return nil, err
	}
	iv, err := hexField(cf.IVHex)
	if err != nil {
		return nil, err
	}
	if iv != nil {
		if err := m.HeaderPut(cose.HeaderLabelIV, iv, cose.BucketUnprotected); err != nil {
			return nil, err
		}
	}
	payload, err := hexField(cf.PayloadHex)
	if err != nil {
		return nil, err
	}
	if err := m.SetPlaintext(payload); err != nil {
		return nil, err
	}

	var cek []byte
	for _, rd := range cf.Recipients {
		r, rcek, err := buildRecipient(rd, cek)
		if err != nil {
			return nil, err
		}
		if cek == nil {
			cek = rcek
		}
		m.AddRecipient(r)
	}

	out, err := m.Encrypt(cek)
	if err != nil {
		return nil, err
	}
	return &Result{OutputBytes: out}, nil
}

func runMac0(cf *ControlFile) (*Result, error) {
	key, err := hexField(cf.KeyHex)
	if err != nil {
		return nil, err
	}

	if cf.Operation == "mac_validate" {
		input, err := hexField(cf.InputHex)
		if err != nil {
			return nil, err
		}
		external, err := hexField(cf.ExternalHex)
		if err != nil {
			return nil, err
		}
		payload, err := cose.VerifyMac0(input, key, external)
		if err != nil {
			return nil, err
		}
		return &Result{Payload: payload}, nil
	}

	m := cose.NewMac0()
	if err := putHeaders(m.HeaderPut, cf.Protected, cose.BucketProtected); err != nil {
		return nil, err
	}
	if err := putHeaders(m.HeaderPut, cf.Unprotected, cose.BucketUnprotected); err != nil {
		return nil, err
	}
	payload, err := hexField(cf.PayloadHex)
	if err != nil {
		return nil, err
	}
	if err := m.SetPayload(payload); err != nil {
		return nil, err
	}
	if external, err := hexField(cf.ExternalHex); err != nil {
		return nil, err
	} else if external != nil {
		if err := m.SetExternalAAD(external); err != nil {
			return nil, err
		}
	}

	out, err := m.Tag(key)
	if err != nil {
		return nil, err
	}
	return &Result{OutputBytes: out}, nil
}

func runMac(cf *ControlFile) (*Result, error) {
	if cf.Operation == "mac_validate" {
		input, err := hexField(cf.InputHex)
		if err != nil {
			return nil, err
		}
		external, err := hexField(cf.ExternalHex)
		if err != nil {
			return nil, err
		}
		engine := &cose.RecipientEngine{ResolveKey: keyResolverFor(cf.Recipients)}
		payload, err := cose.VerifyMac(input, engine, external)
		if err != nil {
			return nil, err
		}
		return &Result{Payload: payload}, nil
	}

	m := cose.NewMac()
	if err := putHeaders(m.HeaderPut, cf.Protected, cose.BucketProtected); err != nil {
		return nil, err
	}
	if err := putHeaders(m.HeaderPut, cf.Unprotected, cose.BucketUnprotected); err != nil {
		return nil, err
	}
	payload, err := hexField(cf.PayloadHex)
	if err != nil {
		return nil, err
	}
	if err := m.SetPayload(payload); err != nil {
		return nil, err
	}

	var macKey []byte
	for _, rd := range cf.Recipients {
		r, rkey, err := buildRecipient(rd, macKey)
		if err != nil {
			return nil, err
		}
		if macKey == nil {
			macKey = rkey
		}
		m.AddRecipient(r)
	}

	out, err := m.Tag(macKey)
	if err != nil {
		return nil, err
	}
	return &Result{OutputBytes: out}, nil
}

func runSign0(cf *ControlFile) (*Result, error) {
	if len(cf.Signers) == 0 {
		return nil, fmt.Errorf("%w: sign0 control file requires exactly one signer", cose.ErrInvalidParameter)
	}
	s := cf.Signers[0]

	if cf.Operation == "verify" {
		input, err := hexField(cf.InputHex)
		if err != nil {
			return nil, err
		}
		external, err := hexField(cf.ExternalHex)
		if err != nil {
			return nil, err
		}
		verifier, err := verifierFromSigner(s)
		if err != nil {
			return nil, err
		}
		payload, err := cose.VerifySign0(input, verifier, external, nil)
		if err != nil {
			return nil, err
		}
		return &Result{Payload: payload}, nil
	}

	signer, err := signerFromDescriptor(s)
	if err != nil {
		return nil, err
	}

	m := cose.NewSign0()
	if err := putHeaders(m.HeaderPut, cf.Protected, cose.BucketProtected); err != nil {
		return nil, err
	}
	if err := putHeaders(m.HeaderPut, cf.Unprotected, cose.BucketUnprotected); err != nil {
		return nil, err
	}
	payload, err := hexField(cf.PayloadHex)
	if err != nil {
		return nil, err
	}
	if err := m.SetPayload(payload); err != nil {
		return nil, err
	}
	if external, err := hexField(cf.ExternalHex); err != nil {
		return nil, err
	} else if external != nil {
		if err := m.SetExternalAAD(external); err != nil {
			return nil, err
		}
	}

	out, err := m.Sign(signer)
	if err != nil {
		return nil, err
	}
	return &Result{OutputBytes: out}, nil
}

func runSigned(cf *ControlFile) (*Result, error) {
	if cf.Operation == "verify" {
		input, err := hexField(cf.InputHex)
		if err != nil {
			return nil, err
		}
		external, err := hexField(cf.ExternalHex)
		if err != nil {
			return nil, err
		}
		verifiers := make([]cose.Verifier, len(cf.Signers))
		for i, s := range cf.Signers {
			v, err := verifierFromSigner(s)
			if err != nil {
				return nil, err
			}
			verifiers[i] = v
		}
		idx := 0
		payload, results, err := cose.VerifySigned(input, external, func(*cose.HeaderBucket) (cose.Verifier, error) {
			v := verifiers[idx%len(verifiers)]
			idx++
			return v, nil
		})
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			if r.Err != nil || !r.Valid {
				return nil, fmt.Errorf("%w: signer verification failed", cose.ErrCryptoFail)
			}
		}
		return &Result{Payload: payload}, nil
	}

	m := cose.NewSigned()
	if err := putHeaders(m.HeaderPut, cf.Protected, cose.BucketProtected); err != nil {
		return nil, err
	}
	if err := putHeaders(m.HeaderPut, cf.Unprotected, cose.BucketUnprotected); err != nil {
		return nil, err
	}
	payload, err := hexField(cf.PayloadHex)
	if err != nil {
		return nil, err
	}
	if err := m.SetPayload(payload); err != nil {
		return nil, err
	}

	for _, s := range cf.Signers {
		signer, err := signerFromDescriptor(s)
		if err != nil {
			return nil, err
		}
		if err := m.AddSigner(signer, cose.BucketProtected); err != nil {
			return nil, err
		}
	}

	out, err := m.Finalize()
	if err != nil {
		return nil, err
	}
	return &Result{OutputBytes: out}, nil
}

// buildRecipient builds a Direct or AES-KW recipient from a control-file
// descriptor, returning the recipient's resolved CEK contribution: for
// Direct this IS the CEK (key_hex verbatim); for AES-KW, when parentCEK is
// nil a fresh CEK is generated and wrapped, the simplest single-recipient
// case of "the first direct recipient supplies the CEK, otherwise the
// engine samples one."
func buildRecipient(rd Recipient, parentCEK []byte) (*cose.Recipient, []byte, error) {
	key, err := hexField(rd.KeyHex)
	if err != nil {
		return nil, nil, err
	}

	if rd.Alg == cose.AlgorithmDirect {
		r, err := cose.BuildDirectRecipient()
		if err != nil {
			return nil, nil, err
		}
		return r, key, nil
	}

	cek := parentCEK
	if cek == nil {
		rec, err := cose.LookupAlgorithm(rd.Alg)
		if err != nil {
			return nil, nil, err
		}
		cek, err = cose.GenerateCEK(rec.KeyBits)
		if err != nil {
			return nil, nil, err
		}
	}
	r, err := cose.BuildKeyWrapRecipient(rd.Alg, key, cek)
	if err != nil {
		return nil, nil, err
	}
	return r, cek, nil
}

// privateKeyFromCoords rebuilds an *ecdsa.PrivateKey from a control file's
// hex-decoded EC2 coordinates by routing through the engine's unified
// COSE_Key type, the same bridge cose.ECDSAPrivateKeyFromKey gives every
// other caller. d is nil for a verifier's public-only key, in which case the
// coordinates are recovered via cose.ECDSAPublicKeyFromKey instead.
func privateKeyFromCoords(alg, crv int64, x, y, d []byte) (*ecdsa.PrivateKey, error) {
	if len(d) > 0 {
		return cose.ECDSAPrivateKeyFromKey(cose.NewEC2Key(crv, x, y, d))
	}
	pub, err := cose.ECDSAPublicKeyFromKey(cose.NewEC2Key(crv, x, y, nil))
	if err != nil {
		return nil, err
	}
	return &ecdsa.PrivateKey{PublicKey: *pub}, nil
}

// keyResolverFor returns a RecipientEngine.ResolveKey callback backed by
// the control file's flat recipient-key list, matched by algorithm since
// the harness's control files carry no kid correlation.
func keyResolverFor(recipients []Recipient) func(h *cose.HeaderBucket) (*cose.Key, error) {
	return func(h *cose.HeaderBucket) (*cose.Key, error) {
		rec, err := h.Alg()
		if err != nil {
			return nil, err
		}
		for _, rd := range recipients {
			if rd.Alg != rec.Alg && rd.Alg != cose.AlgorithmDirect {
				continue
			}
			key, err := hexField(rd.KeyHex)
			if err != nil {
				return nil, err
			}
			return cose.NewSymmetricKey(key), nil
		}
		return nil, fmt.Errorf("%w: no matching recipient key in control file", cose.ErrNoRecipientFound)
	}
}

func signerFromDescriptor(s Signer) (cose.Signer, error) {
	d, err := hexField(s.DHex)
	if err != nil {
		return nil, err
	}
	x, err := hexField(s.XHex)
	if err != nil {
		return nil, err
	}
	y, err := hexField(s.YHex)
	if err != nil {
		return nil, err
	}
	priv, err := privateKeyFromCoords(s.Alg, s.Crv, x, y, d)
	if err != nil {
		return nil, err
	}
	switch s.Alg {
	case cose.AlgorithmES256:
		return cose.NewES256Signer(priv)
	case cose.AlgorithmES384:
		return cose.NewES384Signer(priv)
	case cose.AlgorithmES512:
		return cose.NewES512Signer(priv)
	default:
		return nil, fmt.Errorf("%w: harness only drives ECDSA signers", cose.ErrUnknownAlgorithm)
	}
}

func verifierFromSigner(s Signer) (cose.Verifier, error) {
	x, err := hexField(s.XHex)
	if err != nil {
		return nil, err
	}
	y, err := hexField(s.YHex)
	if err != nil {
		return nil, err
	}
	priv, err := privateKeyFromCoords(s.Alg, s.Crv, x, y, nil)
	if err != nil {
		return nil, err
	}
	switch s.Alg {
	case cose.AlgorithmES256:
		return cose.NewES256Verifier(&priv.PublicKey)
	case cose.AlgorithmES384:
		return cose.NewES384Verifier(&priv.PublicKey)
	case cose.AlgorithmES512:
		return cose.NewES512Verifier(&priv.PublicKey)
	default:
		return nil, fmt.Errorf("%w: harness only drives ECDSA verifiers", cose.ErrUnknownAlgorithm)
	}
}
