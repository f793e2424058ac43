package service

import "errors"

// ErrForbidden marks a business-rule rejection: ineligible ticket,
// duplicate booking, missing booking on update, or a full room.
var ErrForbidden = errors.New("forbidden")

// ErrNotFound marks a missing entity: the user's booking or the room.
var ErrNotFound = errors.New("not found")

// ErrInvalidCredentials is returned by sign-in for an unknown email or a
// wrong password.  The two cases are not distinguished.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrorKind classifies errors returned by this package.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindForbidden
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	}
	return "internal"
}

// Kind reports which error kind err carries.  Anything that is neither
// Forbidden nor NotFound is internal.
func Kind(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	}
	return KindInternal
}
