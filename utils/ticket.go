package utils

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const TicketPrefix = "FEL-"

// NewTicketID returns a short, upper-case ticket code drawn from a random UUID.
func NewTicketID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return TicketPrefix + strings.ToUpper(hex[:12])
}

const passwordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// GeneratePassword returns a random password of n characters.
func GeneratePassword(n int) (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(passwordAlphabet[idx.Int64()])
	}
	return b.String(), nil
}
