package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

var (
	saltChars = []rune("0123456789!@#$%^&*ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz")
)

// RandomSalt returns n characters drawn independently from the salt alphabet.
func RandomSalt(n int) (string, error) {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		idx, err := RandomIntn(len(saltChars))
		if err != nil {
			return "", fmt.Errorf("generating salt char index: %w", err)
		}
		sb.WriteRune(saltChars[idx])
	}
	return sb.String(), nil
}

func RandomIntn(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, fmt.Errorf("generating random number: %w", err)
	}
	return int(n.Int64()), nil
}
