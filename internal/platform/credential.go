package platform

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const credentialAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const credentialLength = 24

// NewCredential generates a random subscriber credential for AAA accounts
// when the caller did not supply one.
func NewCredential() string {
	b := make([]byte, credentialLength)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand: " + err.Error())
	}
	for i := range b {
		b[i] = credentialAlphabet[b[i]%byte(len(credentialAlphabet))]
	}
	return string(b)
}

// HashCredential returns a bcrypt hash for at-rest storage on the service
// record. The plaintext only travels to the AAA system.
func HashCredential(credential string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash credential: %w", err)
	}
	return string(hash), nil
}
