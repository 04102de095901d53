package credential

import "errors"

var (
	// ErrUserNotFound is returned when no record matches the username.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned by Create when the username is already stored.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned for usernames that cannot be encoded.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrStoreAccess is returned when the password file cannot be opened,
	// read, or written.
	ErrStoreAccess = errors.New("credential store access")
	// ErrCorruptFile is returned when a record is truncated or malformed.
	ErrCorruptFile = errors.New("corrupt credential file")
)
