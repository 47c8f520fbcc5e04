package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// passwordAlphabet omits 0, 1, O and I so printed passwords are unambiguous.
const passwordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const passwordLength = 8

// FormatUsername builds the username for sequence number seq.
// With a prefix: PREFIX + 3-digit seq. Without: EXAM + 2-digit exam ID + 3-digit seq.
func FormatUsername(examID int64, seq int, prefix string) string {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix != "" {
		return fmt.Sprintf("%s%03d", prefix, seq)
	}
	return fmt.Sprintf("EXAM%02d%03d", examID, seq)
}

// GeneratePassword returns an XXXX-XXXX password drawn from a CSPRNG.
func GeneratePassword() (string, error) {
	max := big.NewInt(int64(len(passwordAlphabet)))

	var b strings.Builder
	b.Grow(passwordLength + 1)
	for i := 0; i < passwordLength; i++ {
		if i == passwordLength/2 {
			b.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		b.WriteByte(passwordAlphabet[n.Int64()])
	}
	return b.String(), nil
}
