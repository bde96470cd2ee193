package core

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ErrNoCredentialSupplied distinguishes "nothing to verify" from a failed
// verification; the caller decides the policy (the orchestrator treats it
// as failure).
var ErrNoCredentialSupplied = goerrors.New(
	"core: no oauth consumer key supplied",
	goerrors.CategoryAuth,
).WithCode(http.StatusUnauthorized).WithTextCode(BridgeErrorUnauthorized)

// SignedRequest is the ephemeral product of one signing operation. Never
// persisted.
type SignedRequest struct {
	Method     string
	URL        string
	Parameters map[string]string
	Signature  string
	Timestamp  string
	Nonce      string
}

// AuthorizationHeader renders the OAuth parameters as an Authorization
// header value.
func (r SignedRequest) AuthorizationHeader() string {
	keys := make([]string, 0, len(r.Parameters))
	for key := range r.Parameters {
		if strings.HasPrefix(key, "oauth_") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, `OAuth realm=""`)
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf(
			"%s=%q", percentEncode(key), percentEncode(r.Parameters[key]),
		))
	}
	return strings.Join(parts, ",")
}

// SignatureVerifier checks inbound OAuth 1.0a HMAC-SHA1 signatures.
// A nil credential store disables authentication: every request verifies.
// That operating mode is an explicit opt-in at the orchestrator boundary,
// not a bypass.
type SignatureVerifier struct {
	Credentials CredentialStore
	Nonces      NonceLedger
	Window      time.Duration
	Now         func() time.Time
}

func NewSignatureVerifier(credentials CredentialStore, nonces NonceLedger, window time.Duration) *SignatureVerifier {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &SignatureVerifier{
		Credentials: credentials,
		Nonces:      nonces,
		Window:      window,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Verify authenticates one inbound request. Returns nil when the request
// is authenticated, ErrNoCredentialSupplied when no consumer key was sent,
// and an auth-category error otherwise. Verification never panics across
// this boundary; malformed inputs surface as authentication failures.
func (v *SignatureVerifier) Verify(ctx context.Context, method string, requestURL string, params LaunchParams) error {
	if v == nil {
		return unauthenticated("core: signature verifier is not configured")
	}
	consumerKey := params.ConsumerKey()
	if consumerKey == "" {
		return ErrNoCredentialSupplied
	}
	if v.Credentials == nil {
		// Authentication disabled by construction.
		return nil
	}

	secret, err := v.Credentials.LookupSecret(ctx, consumerKey)
	if err != nil || strings.TrimSpace(secret) == "" {
		return unauthenticated(fmt.Sprintf("core: unknown consumer key %q", consumerKey))
	}

	if sigMethod := params.Get(ParamSignatureMethod); sigMethod != "" && sigMethod != SignatureMethodHMAC {
		return unauthenticated(fmt.Sprintf("core: unsupported signature method %q", sigMethod))
	}

	if err := v.checkTimestamp(params.Get(ParamTimestamp)); err != nil {
		return err
	}
	if params.Get(ParamNonce) == "" {
		return unauthenticated("core: oauth_nonce is required")
	}

	supplied := params.Get(ParamSignature)
	if supplied == "" {
		return unauthenticated("core: oauth_signature is required")
	}

	base, err := signatureBaseString(method, requestURL, params, ParamSignature)
	if err != nil {
		return unauthenticated(fmt.Sprintf("core: build signature base: %v", err))
	}
	expected := hmacSHA1(base, secret)
	if !hmac.Equal([]byte(expected), []byte(supplied)) {
		return unauthenticated("core: oauth signature mismatch")
	}

	// Claim the nonce only after the signature checks out, so garbage
	// requests cannot burn ledger slots or evict legitimate claims.
	return v.claimNonce(ctx, consumerKey, params.Get(ParamNonce))
}

func (v *SignatureVerifier) checkTimestamp(raw string) error {
	if raw == "" {
		return unauthenticated("core: oauth_timestamp is required")
	}
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return unauthenticated(fmt.Sprintf("core: invalid oauth_timestamp %q", raw))
	}
	now := v.now()
	sent := time.Unix(seconds, 0).UTC()
	skew := now.Sub(sent)
	if skew < 0 {
		skew = -skew
	}
	if skew > v.window() {
		return unauthenticated(fmt.Sprintf(
			"core: oauth_timestamp outside freshness window of %s", v.window(),
		))
	}
	return nil
}

func (v *SignatureVerifier) claimNonce(ctx context.Context, consumerKey string, nonce string) error {
	if v.Nonces == nil {
		return nil
	}
	claimed, err := v.Nonces.Claim(ctx, consumerKey+":"+nonce, v.window())
	if err != nil {
		return unauthenticated(fmt.Sprintf("core: nonce ledger: %v", err))
	}
	if !claimed {
		return unauthenticated(fmt.Sprintf("core: oauth_nonce %q was already used", nonce))
	}
	return nil
}

func (v *SignatureVerifier) now() time.Time {
	if v != nil && v.Now != nil {
		return v.Now().UTC()
	}
	return time.Now().UTC()
}

func (v *SignatureVerifier) window() time.Duration {
	if v != nil && v.Window > 0 {
		return v.Window
	}
	return 5 * time.Minute
}

// RequestSigner produces OAuth 1.0a HMAC-SHA1 signatures for outbound
// requests. Token secrets are always empty: request/access tokens are
// unsupported by this bridge.
type RequestSigner struct {
	Now   func() time.Time
	Nonce func() (string, error)
}

func NewRequestSigner() *RequestSigner {
	return &RequestSigner{
		Now: func() time.Time {
			return time.Now().UTC()
		},
		Nonce: generateNonce,
	}
}

// Sign builds the full signed parameter set for method+url, folding in any
// extra parameters (e.g. oauth_body_hash) before canonicalization.
func (s *RequestSigner) Sign(method string, requestURL string, extra map[string]string, cred ConsumerCredential) (SignedRequest, error) {
	if s == nil {
		return SignedRequest{}, fmt.Errorf("core: request signer is not configured")
	}
	if strings.TrimSpace(cred.ConsumerKey) == "" {
		return SignedRequest{}, fmt.Errorf("core: consumer key is required for signing")
	}

	nonce, err := s.nonce()
	if err != nil {
		return SignedRequest{}, fmt.Errorf("core: generate nonce: %w", err)
	}
	timestamp := strconv.FormatInt(s.now().Unix(), 10)

	params := map[string]string{
		ParamConsumerKey:     cred.ConsumerKey,
		ParamSignatureMethod: SignatureMethodHMAC,
		ParamTimestamp:       timestamp,
		ParamNonce:           nonce,
		ParamOAuthVersion:    "1.0",
	}
	for key, value := range extra {
		if strings.TrimSpace(key) == "" {
			continue
		}
		params[key] = value
	}

	base, err := signatureBaseString(method, requestURL, params, "")
	if err != nil {
		return SignedRequest{}, fmt.Errorf("core: build signature base: %w", err)
	}
	signature := hmacSHA1(base, cred.ConsumerSecret)
	params[ParamSignature] = signature

	return SignedRequest{
		Method:     strings.ToUpper(strings.TrimSpace(method)),
		URL:        requestURL,
		Parameters: params,
		Signature:  signature,
		Timestamp:  timestamp,
		Nonce:      nonce,
	}, nil
}

// BodyHash computes the oauth_body_hash value for a raw request body:
// base64(SHA1(body)).
func BodyHash(body []byte) string {
	sum := sha1.Sum(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func (s *RequestSigner) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *RequestSigner) nonce() (string, error) {
	if s != nil && s.Nonce != nil {
		return s.Nonce()
	}
	return generateNonce()
}

func generateNonce() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// signatureBaseString reconstructs the OAuth 1.0a canonical base string:
// METHOD&encode(baseURL)&encode(sorted normalized parameters). The skip
// parameter (oauth_signature on the verify path) is excluded.
func signatureBaseString[P ~map[string]string](method string, requestURL string, params P, skip string) (string, error) {
	baseURL, query, err := normalizeBaseURL(requestURL)
	if err != nil {
		return "", err
	}

	type pair struct {
		key   string
		value string
	}
	pairs := make([]pair, 0, len(params)+len(query))
	for key, value := range params {
		if key == skip && skip != "" {
			continue
		}
		pairs = append(pairs, pair{percentEncode(key), percentEncode(value)})
	}
	for key, values := range query {
		for _, value := range values {
			pairs = append(pairs, pair{percentEncode(key), percentEncode(value)})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].key != pairs[j].key {
			return pairs[i].key < pairs[j].key
		}
		return pairs[i].value < pairs[j].value
	})

	encoded := make([]string, 0, len(pairs))
	for _, p := range pairs {
		encoded = append(encoded, p.key+"="+p.value)
	}
	normalized := strings.Join(encoded, "&")

	return strings.ToUpper(strings.TrimSpace(method)) +
		"&" + percentEncode(baseURL) +
		"&" + percentEncode(normalized), nil
}

// normalizeBaseURL lowers scheme/host, drops default ports and the query
// string (query parameters join the normalized parameter set instead).
func normalizeBaseURL(raw string) (string, url.Values, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", nil, err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", nil, fmt.Errorf("core: absolute url is required, got %q", raw)
	}
	scheme := strings.ToLower(parsed.Scheme)
	host := strings.ToLower(parsed.Host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	query := parsed.Query()
	return scheme + "://" + host + parsed.EscapedPath(), query, nil
}

// percentEncode implements RFC 5849 §3.6 encoding: unreserved characters
// pass through, everything else becomes uppercase %XX.
func percentEncode(value string) string {
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		default:
			b.WriteString(fmt.Sprintf("%%%02X", c))
		}
	}
	return b.String()
}

func hmacSHA1(base string, consumerSecret string) string {
	key := percentEncode(consumerSecret) + "&"
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func unauthenticated(message string) error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(BridgeErrorUnauthorized)
}
