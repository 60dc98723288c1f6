// Package token signs and verifies survey link tokens. A token is the
// urlsafe-base64 form "payload.signature" where payload is a compact JSON
// object and signature is an HMAC-SHA256 over the payload bytes. Verification
// proves the token was issued by this server; whether the link is still
// active is a database question, not a token one.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// salt is mixed into the HMAC key so link tokens cannot be confused with
// anything else signed with the same secret.
const salt = "survey-link"

// ErrInvalidToken covers malformed, truncated, and tampered tokens alike.
var ErrInvalidToken = errors.New("invalid link token")

// Payload is what a link token carries. The nonce makes every issued token
// unique even for the same survey.
type Payload struct {
	Nonce    string `json:"nonce"`
	SurveyID int64  `json:"survey_id"`
}

// Signer issues and verifies link tokens for one secret.
type Signer struct {
	key []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{key: []byte(secret + salt)}
}

// Sign issues a fresh token for a survey.
func (s *Signer) Sign(surveyID int64) (string, error) {
	p := Payload{
		Nonce:    strings.ReplaceAll(uuid.NewString(), "-", ""),
		SurveyID: surveyID,
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	enc := base64.RawURLEncoding
	return enc.EncodeToString(payload) + "." + enc.EncodeToString(s.sign(payload)), nil
}

// Verify checks a token's signature and returns its payload.
func (s *Signer) Verify(tok string) (Payload, error) {
	var p Payload
	dot := strings.LastIndex(tok, ".")
	if dot < 0 {
		return p, ErrInvalidToken
	}
	enc := base64.RawURLEncoding
	payload, err := enc.DecodeString(tok[:dot])
	if err != nil {
		return p, ErrInvalidToken
	}
	sig, err := enc.DecodeString(tok[dot+1:])
	if err != nil {
		return p, ErrInvalidToken
	}
	if !hmac.Equal(sig, s.sign(payload)) {
		return p, ErrInvalidToken
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, ErrInvalidToken
	}
	return p, nil
}

func (s *Signer) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	return mac.Sum(nil)
}
