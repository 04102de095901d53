package credential

import (
	"fmt"

	"github.com/jmcleod/irongate/internal/util"
)

// Hash derives the stored hash of password under salt.
func Hash(password string, salt [SaltSize]byte) ([HashSize]byte, error) {
	var out [HashSize]byte
	key, err := util.DeriveArgon2iKey(password, salt[:], util.DefaultArgon2iParams())
	if err != nil {
		return out, fmt.Errorf("hashing password: %w", err)
	}
	copy(out[:], key)
	util.WipeBytes(key)
	return out, nil
}

// NewSalt returns a fresh random salt.
func NewSalt() ([SaltSize]byte, error) {
	var out [SaltSize]byte
	s, err := util.RandomSalt(SaltSize)
	if err != nil {
		return out, fmt.Errorf("generating salt: %w", err)
	}
	copy(out[:], s)
	return out, nil
}

// NewRecord builds a record for username with a fresh salt.
func NewRecord(username, password string) (Record, error) {
	if err := ValidateUsername(username); err != nil {
		return Record{}, err
	}
	salt, err := NewSalt()
	if err != nil {
		return Record{}, err
	}
	hash, err := Hash(password, salt)
	if err != nil {
		return Record{}, err
	}
	return Record{Username: username, Hash: hash, Salt: salt}, nil
}
