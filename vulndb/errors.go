package vulndb

import (
	"errors"
	"fmt"
)

// ErrNotFound signals an absent entity. It is never fatal, callers branch on
// it to decide between create and update.
var ErrNotFound = errors.New("not found")

var (
	ErrVulnerabilityNotFound = fmt.Errorf("vulnerability %w", ErrNotFound)
	ErrVersionNotFound       = fmt.Errorf("version %w", ErrNotFound)
	ErrSoftwareNotFound      = fmt.Errorf("software %w", ErrNotFound)
)

var (
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidKey   = errors.New("invalid key")
)
