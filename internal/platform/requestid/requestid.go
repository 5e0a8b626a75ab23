package requestid

import (
	"crypto/rand"
	"encoding/hex"
)

func New() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Short truncates an id to a log-friendly prefix. Full ids stay on the
// wire; logs carry the short form.
func Short(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
