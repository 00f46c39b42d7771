package errors

import (
	"errors"
	"fmt"
)

// Shared infrastructure sentinels. Store implementations translate backend
// misses and lost update races into these; domain packages map them onto
// the authentication error taxonomy.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// IsNotFound reports whether any error in err's chain is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether any error in err's chain is ErrConflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
