package cose

// HeaderLabelCWTClaims carries a CWT Claims Set (RFC 9597) inside a COSE
// message's protected headers, the standard way to bind a signed or
// encrypted COSE message to a subject/issuer/expiry without a bespoke
// header scheme.
const HeaderLabelCWTClaims = 15

// CWT Claim Keys (RFC 8392).
const (
	CWTClaimIss   = 1
	CWTClaimSub   = 2
	CWTClaimAud   = 3
	CWTClaimExp   = 4
	CWTClaimNbf   = 5
	CWTClaimIat   = 6
	CWTClaimCti   = 7
	CWTClaimCnf   = 8
	CWTClaimScope = 9
	CWTClaimNonce = 10
)

// CWTClaimsSet is a CWT claims map, the value carried under
// HeaderLabelCWTClaims.
type CWTClaimsSet map[int64]interface{}

// CWTClaimsOptions holds the fields CreateCWTClaims accepts; a field left
// at its zero value is omitted from the resulting claims set rather than
// encoded as an explicit zero/empty value.
type CWTClaimsOptions struct {
	Iss   string
	Sub   string
	Aud   string
	Exp   int64
	Nbf   int64
	Iat   int64
	Cti   []byte
	Scope string
	Nonce []byte
}

// CreateCWTClaims builds a CWT claims set from opts.
func CreateCWTClaims(opts CWTClaimsOptions) CWTClaimsSet {
	claims := make(CWTClaimsSet)
	if opts.Iss != "" {
		claims[CWTClaimIss] = opts.Iss
	}
	if opts.Sub != "" {
		claims[CWTClaimSub] = opts.Sub
	}
	if opts.Aud != "" {
		claims[CWTClaimAud] = opts.Aud
	}
	if opts.Exp != 0 {
		claims[CWTClaimExp] = opts.Exp
	}
	if opts.Nbf != 0 {
		claims[CWTClaimNbf] = opts.Nbf
	}
	if opts.Iat != 0 {
		claims[CWTClaimIat] = opts.Iat
	}
	if len(opts.Cti) > 0 {
		claims[CWTClaimCti] = opts.Cti
	}
	if opts.Scope != "" {
		claims[CWTClaimScope] = opts.Scope
	}
	if len(opts.Nonce) > 0 {
		claims[CWTClaimNonce] = opts.Nonce
	}
	return claims
}
