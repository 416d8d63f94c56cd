// Package code generates organization invite codes.
package code

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
)

const randomBytes = 10

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Generate returns a random upper-case code such as "ORG-MFRGG2LTMVZGS3TH".
func Generate() (string, error) {
	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate invite code: %w", err)
	}
	return "ORG-" + strings.ToUpper(encoding.EncodeToString(buf)), nil
}
