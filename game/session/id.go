package session

import (
	"crypto/rand"
	"math/big"
)

const (
	// IDLength is the number of characters in a session code.
	IDLength = 7

	idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// IDGenerator produces session codes.
type IDGenerator func() string

// RandomID returns a random code of IDLength uppercase alphanumerics.
// Codes are not checked against live sessions.
func RandomID() string {
	b := make([]byte, IDLength)
	max := big.NewInt(int64(len(idAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		b[i] = idAlphabet[n.Int64()]
	}
	return string(b)
}
