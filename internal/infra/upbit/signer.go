package upbit

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/url"

	"github.com/google/uuid"
)

// Signer builds Upbit JWT bearer tokens (HS256).
// Missing credentials fail closed: AuthToken returns an empty string and
// callers must abort instead of sending the request unsigned.
type Signer struct {
	accessKey string
	secretKey string
}

// NewSigner creates a new Signer instance
func NewSigner(accessKey, secretKey string) *Signer {
	return &Signer{accessKey: accessKey, secretKey: secretKey}
}

// HasCredentials reports whether a non-empty key pair was supplied.
func (s *Signer) HasCredentials() bool {
	return s.accessKey != "" && s.secretKey != ""
}

type tokenPayload struct {
	AccessKey    string `json:"access_key"`
	Nonce        string `json:"nonce"`
	QueryHash    string `json:"query_hash,omitempty"`
	QueryHashAlg string `json:"query_hash_alg,omitempty"`
}

// AuthToken returns "Bearer <jwt>" for a request with the given query
// parameters, or "" when credentials are absent.
//
// The query hash is the hex SHA-512 of the canonical query string:
// parameters url-encoded, sorted by key ascending, joined by '&'.
func (s *Signer) AuthToken(params url.Values) string {
	if !s.HasCredentials() {
		return ""
	}

	payload := tokenPayload{
		AccessKey: s.accessKey,
		Nonce:     uuid.NewString(),
	}
	if len(params) > 0 {
		// url.Values.Encode sorts by key and escapes both sides.
		sum := sha512.Sum512([]byte(params.Encode()))
		payload.QueryHash = hex.EncodeToString(sum[:])
		payload.QueryHashAlg = "SHA512"
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return ""
	}

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	body := base64.RawURLEncoding.EncodeToString(payloadJSON)
	signingInput := header + "." + body

	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write([]byte(signingInput))
	signature := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return "Bearer " + signingInput + "." + signature
}
