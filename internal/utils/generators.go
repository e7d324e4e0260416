package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// TokenAlphabet has no I, O, 0 or 1 so tokens can be read aloud at a counter.
const TokenAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const BookingTokenLength = 6

// GenerateBookingToken returns a random 6-character booking token.
func GenerateBookingToken() (string, error) {
	return randomString(TokenAlphabet, BookingTokenLength)
}

func randomString(alphabet string, n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}

// IsValidBookingToken reports whether s could have been produced by GenerateBookingToken.
func IsValidBookingToken(s string) bool {
	if len(s) != BookingTokenLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		found := false
		for j := 0; j < len(TokenAlphabet); j++ {
			if s[i] == TokenAlphabet[j] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// GenerateBatchLabel builds the human label of a cashflow batch, e.g. VIR12.
func GenerateBatchLabel(seq int) string {
	return fmt.Sprintf("VIR%d", seq)
}

// GenerateInvoiceReference builds F<yy><7-digit sequence>.
func GenerateInvoiceReference(at time.Time, seq int) string {
	return fmt.Sprintf("F%02d%07d", at.Year()%100, seq)
}
