// Package credential stores salted Argon2i password hashes in a flat file.
//
// The file is a sequence of records, each encoded as
//
//	username '\n' hash[32] salt[16] '\n'
//
// with no header, count, or checksum. Hash and salt are raw bytes and may
// themselves contain newlines, so the decoder reads them by length.
package credential

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	HashSize = 32
	SaltSize = 16
)

// Record is a single stored credential.
type Record struct {
	Username string
	Hash     [HashSize]byte
	Salt     [SaltSize]byte
}

// ValidateUsername reports whether name can be written to the file.
func ValidateUsername(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidUsername)
	}
	if strings.ContainsAny(name, "\n\r") {
		return fmt.Errorf("%w: contains a line break", ErrInvalidUsername)
	}
	return nil
}

// WriteRecord encodes r to w.
func WriteRecord(w io.Writer, r Record) error {
	if err := ValidateUsername(r.Username); err != nil {
		return err
	}
	buf := make([]byte, 0, len(r.Username)+1+HashSize+SaltSize+1)
	buf = append(buf, r.Username...)
	buf = append(buf, '\n')
	buf = append(buf, r.Hash[:]...)
	buf = append(buf, r.Salt[:]...)
	buf = append(buf, '\n')
	_, err := w.Write(buf)
	return err
}

// ReadRecord decodes the next record. It returns io.EOF when br is exhausted
// exactly on a record boundary and ErrCorruptFile for a partial record.
func ReadRecord(br *bufio.Reader) (Record, error) {
	var r Record

	name, err := br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && name == "" {
			return r, io.EOF
		}
		if errors.Is(err, io.EOF) {
			return r, fmt.Errorf("%w: truncated username %q", ErrCorruptFile, name)
		}
		return r, err
	}
	r.Username = strings.TrimSuffix(name, "\n")

	if _, err := io.ReadFull(br, r.Hash[:]); err != nil {
		return r, fmt.Errorf("%w: reading hash for %q: %v", ErrCorruptFile, r.Username, err)
	}
	if _, err := io.ReadFull(br, r.Salt[:]); err != nil {
		return r, fmt.Errorf("%w: reading salt for %q: %v", ErrCorruptFile, r.Username, err)
	}
	term, err := br.ReadByte()
	if err != nil {
		return r, fmt.Errorf("%w: missing terminator for %q: %v", ErrCorruptFile, r.Username, err)
	}
	if term != '\n' {
		return r, fmt.Errorf("%w: bad terminator 0x%02x for %q", ErrCorruptFile, term, r.Username)
	}
	return r, nil
}
