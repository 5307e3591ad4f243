package service

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// codeAlphabet leaves out 0, O, 1, I and L.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GenerateCode returns PREFIX-XXXX-XXXX drawn from crypto/rand.
func GenerateCode(prefix string) (string, error) {
	var b strings.Builder
	b.Grow(len(prefix) + 10)
	b.WriteString(prefix)

	max := big.NewInt(int64(len(codeAlphabet)))
	for group := 0; group < 2; group++ {
		b.WriteByte('-')
		for i := 0; i < 4; i++ {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", err
			}
			b.WriteByte(codeAlphabet[n.Int64()])
		}
	}
	return b.String(), nil
}

// NormalizeCode uppercases and trims user-typed codes.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
