// Package keys generates the opaque bearer credentials used by tenants
// (api_key) and routines (routine_key).
package keys

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const tokenBytes = 32

// NewToken returns a 64-character hex token from a CSPRNG.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// NewUniqueToken regenerates until exists reports the token as unused. A
// collision is astronomically unlikely, but the check is cheap and removes
// any doubt.
func NewUniqueToken(exists func(string) (bool, error)) (string, error) {
	for {
		token, err := NewToken()
		if err != nil {
			return "", err
		}
		taken, err := exists(token)
		if err != nil {
			return "", err
		}
		if !taken {
			return token, nil
		}
	}
}
