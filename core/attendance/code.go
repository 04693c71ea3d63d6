package attendance

import (
	"crypto/rand"
	"encoding/base32"
	"strings"

	"github.com/pkg/errors"
)

// codeBytes gives the token codes 160 bits of randomness.
const codeBytes = 20

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateCode returns a random, url-safe token code.
func GenerateCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "reading random bytes")
	}
	return strings.ToLower(codeEncoding.EncodeToString(b)), nil
}
