// Package signer issues and checks the short tokens embedded in the
// accept/decline links of confirmation emails.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// TokenLength is the number of hex characters kept from the HMAC digest.
const TokenLength = 32

const (
	ActionAccept  = "accept"
	ActionDecline = "decline"
)

var ErrEmptySecret = errors.New("signer: empty secret")

type Signer struct {
	secret []byte
}

func New(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign binds a token to one (schedule, action) pair.
func (s *Signer) Sign(scheduleID, action string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(scheduleID + ":" + action))
	return hex.EncodeToString(mac.Sum(nil))[:TokenLength]
}

// Verify recomputes the token and compares in constant time.
func (s *Signer) Verify(token, scheduleID, action string) bool {
	if len(token) != TokenLength {
		return false
	}
	expected := s.Sign(scheduleID, action)
	return hmac.Equal([]byte(expected), []byte(token))
}
