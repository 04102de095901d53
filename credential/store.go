package credential

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jmcleod/irongate/internal/util"
)

// Store is a password file. It keeps no open handle; every operation opens,
// scans, and closes the file. Concurrent writers are not coordinated.
type Store struct {
	path string
}

// NewStore returns a Store backed by the file at path. The file need not
// exist until the first Create.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Lookup returns the first record whose username matches exactly.
func (s *Store) Lookup(username string) (Record, error) {
	f, err := s.open()
	if err != nil {
		return Record{}, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	for {
		r, err := ReadRecord(br)
		if errors.Is(err, io.EOF) {
			return Record{}, fmt.Errorf("%s: %w", username, ErrUserNotFound)
		}
		if err != nil {
			return Record{}, s.readErr(err)
		}
		if r.Username == username {
			return r, nil
		}
	}
}

// Verify reports whether password matches the stored hash for username.
// An unknown user yields false with no error and no hashing.
func (s *Store) Verify(username, password string) (bool, error) {
	r, err := s.Lookup(username)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	ok, err := util.CompareArgon2iKey(password, r.Salt[:], util.DefaultArgon2iParams(), r.Hash[:])
	if err != nil {
		return false, fmt.Errorf("hashing password: %w", err)
	}
	return ok, nil
}

// Create appends a new record. Existing usernames are rejected.
func (s *Store) Create(username, password string) error {
	if err := ValidateUsername(username); err != nil {
		return err
	}
	_, err := s.Lookup(username)
	switch {
	case err == nil:
		return fmt.Errorf("%s: %w", username, ErrUserExists)
	case errors.Is(err, ErrUserNotFound), errors.Is(err, fs.ErrNotExist):
	default:
		return err
	}

	r, err := NewRecord(username, password)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("%w: opening %s for append: %w", ErrStoreAccess, s.path, err)
	}
	if err := WriteRecord(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: appending to %s: %w", ErrStoreAccess, s.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", ErrStoreAccess, s.path, err)
	}
	return nil
}

// ChangePassword replaces the salt and hash of the first record matching
// username. The rest of the file is preserved in order.
func (s *Store) ChangePassword(username, newPassword string) error {
	replacement, err := NewRecord(username, newPassword)
	if err != nil {
		return err
	}
	return s.rewrite(username, func(records []Record, i int) []Record {
		records[i] = replacement
		return records
	})
}

// Remove deletes the first record matching username.
func (s *Store) Remove(username string) error {
	return s.rewrite(username, func(records []Record, i int) []Record {
		return append(records[:i], records[i+1:]...)
	})
}

// Usernames lists stored usernames in file order. A missing file is empty.
func (s *Store) Usernames() ([]string, error) {
	records, err := s.readAll()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.Username
	}
	return names, nil
}

func (s *Store) open() (*os.File, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrStoreAccess, s.path, err)
	}
	return f, nil
}

func (s *Store) readErr(err error) error {
	if errors.Is(err, ErrCorruptFile) {
		return fmt.Errorf("%s: %w", s.path, err)
	}
	return fmt.Errorf("%w: reading %s: %w", ErrStoreAccess, s.path, err)
}

func (s *Store) readAll() ([]Record, error) {
	f, err := s.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []Record
	br := bufio.NewReader(f)
	for {
		r, err := ReadRecord(br)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, s.readErr(err)
		}
		records = append(records, r)
	}
}

// rewrite applies edit to the first record matching username and replaces
// the file atomically through a temporary sibling.
func (s *Store) rewrite(username string, edit func(records []Record, i int) []Record) error {
	records, err := s.readAll()
	if err != nil {
		return err
	}
	idx := -1
	for i, r := range records {
		if r.Username == username {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%s: %w", username, ErrUserNotFound)
	}
	records = edit(records, idx)

	perm := os.FileMode(0o600)
	if st, err := os.Stat(s.path); err == nil {
		perm = st.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".passwd-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %w", ErrStoreAccess, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	bw := bufio.NewWriter(tmp)
	for _, r := range records {
		if err := WriteRecord(bw, r); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("%w: writing %s: %w", ErrStoreAccess, tmpName, err)
		}
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: flushing %s: %w", ErrStoreAccess, tmpName, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: chmod %s: %w", ErrStoreAccess, tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: sync %s: %w", ErrStoreAccess, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", ErrStoreAccess, tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: replacing %s: %w", ErrStoreAccess, s.path, err)
	}
	return nil
}
