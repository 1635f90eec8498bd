package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// PINVerifier checks a manager PIN against a bcrypt hash.
type PINVerifier struct {
	hash []byte
}

// NewPINVerifier returns a verifier for hash. An empty hash rejects every PIN.
func NewPINVerifier(hash string) *PINVerifier {
	return &PINVerifier{hash: []byte(hash)}
}

func (v *PINVerifier) Verify(pin string) bool {
	if len(v.hash) == 0 || pin == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(v.hash, []byte(pin)) == nil
}

// HashPIN returns the bcrypt hash to configure a PINVerifier with.
func HashPIN(pin string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
