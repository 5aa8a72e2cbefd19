package utils

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Account number prefixes per account type.
const (
	PrefixChecking     = "AC"
	PrefixSavings      = "SV"
	PrefixLoan         = "LN"
	PrefixFixedDeposit = "FD"
)

// GenerateAccountNumber generates an account number with the given prefix
// and the specified count of random digits, e.g. "LN-8402937561".
func GenerateAccountNumber(prefix string, digits int) (string, error) {
	if digits < 1 || digits > 18 {
		return "", fmt.Errorf("invalid account number length: %d", digits)
	}

	raw := make([]byte, digits)
	_, err := rand.Read(raw)
	if err != nil {
		return "", fmt.Errorf("failed to generate random digits: %w", err)
	}

	var builder strings.Builder
	builder.WriteString(prefix)
	builder.WriteByte('-')
	for _, b := range raw {
		builder.WriteByte(b%10 + '0')
	}

	return builder.String(), nil
}
