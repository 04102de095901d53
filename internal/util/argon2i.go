package util

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2iParams are the cost parameters for Argon2i password hashing.
type Argon2iParams struct {
	Time        uint32
	MemoryKiB   uint32
	Parallelism uint8
	KeyLen      uint32
}

// DefaultArgon2iParams returns the parameters every stored credential is
// hashed with. Changing them invalidates existing password files.
func DefaultArgon2iParams() Argon2iParams {
	return Argon2iParams{
		Time:        2,
		MemoryKiB:   64 * 1024,
		Parallelism: 1,
		KeyLen:      32,
	}
}

func DeriveArgon2iKey(password string, salt []byte, params Argon2iParams) ([]byte, error) {
	if params.KeyLen != 32 {
		return nil, fmt.Errorf("argon2i key length must be 32 bytes")
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("argon2i salt must not be empty")
	}
	return argon2.Key([]byte(password), salt, params.Time, params.MemoryKiB, params.Parallelism, params.KeyLen), nil
}

func CompareArgon2iKey(password string, salt []byte, params Argon2iParams, expectedKey []byte) (bool, error) {
	key, err := DeriveArgon2iKey(password, salt, params)
	if err != nil {
		return false, err
	}
	defer WipeBytes(key)
	return subtle.ConstantTimeCompare(key, expectedKey) == 1, nil
}
