package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	HeaderSignature = "X-Diagnoai-Signature"
	HeaderDate      = "X-Diagnoai-Date"
	HeaderNonce     = "X-Diagnoai-Nonce"
)

var (
	ErrSignatureMissing  = errors.New("signature headers missing")
	ErrSignatureDate     = errors.New("signature date is not RFC 3339")
	ErrSignatureExpired  = errors.New("signature date outside allowed skew")
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// Callback is a server-to-server request signed with the shared webhook secret.
type Callback struct {
	Method    string
	Path      string
	Query     string
	Body      []byte
	Date      string
	Nonce     string
	Signature string
}

// ReadCallback collects the signed parts of r. body must be the request body already read.
func ReadCallback(r *http.Request, body []byte) (Callback, error) {
	cb := Callback{
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     r.URL.RawQuery,
		Body:      body,
		Date:      r.Header.Get(HeaderDate),
		Nonce:     r.Header.Get(HeaderNonce),
		Signature: r.Header.Get(HeaderSignature),
	}
	if cb.Date == "" || cb.Nonce == "" || cb.Signature == "" {
		return Callback{}, ErrSignatureMissing
	}
	return cb, nil
}

// Sign returns the HMAC-SHA256 over method, path, query, body hash, date and nonce,
// newline separated.
func (cb Callback) Sign(secret string) string {
	bodySum := sha256.Sum256(cb.Body)
	data := strings.Join([]string{
		strings.ToUpper(cb.Method),
		cb.Path,
		cb.Query,
		base64.RawURLEncoding.EncodeToString(bodySum[:]),
		cb.Date,
		cb.Nonce,
	}, "\n")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks the date against now and the signature against secret. An empty
// secret accepts nothing.
func (cb Callback) Verify(secret string, skew time.Duration, now time.Time) error {
	at, err := time.Parse(time.RFC3339, cb.Date)
	if err != nil {
		return ErrSignatureDate
	}
	if d := now.Sub(at); d > skew || d < -skew {
		return ErrSignatureExpired
	}
	if secret == "" || !hmac.Equal([]byte(cb.Signature), []byte(cb.Sign(secret))) {
		return ErrSignatureMismatch
	}
	return nil
}

// NonceKey is the cache key that marks the callback's nonce as used.
func (cb Callback) NonceKey() string {
	return "sig:" + cb.Nonce
}

// SignRequest sets the date, nonce and signature headers on r for body.
func SignRequest(r *http.Request, secret string, body []byte, at time.Time, nonce string) {
	cb := Callback{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Body:   body,
		Date:   at.UTC().Format(time.RFC3339),
		Nonce:  nonce,
	}
	r.Header.Set(HeaderDate, cb.Date)
	r.Header.Set(HeaderNonce, cb.Nonce)
	r.Header.Set(HeaderSignature, cb.Sign(secret))
}
