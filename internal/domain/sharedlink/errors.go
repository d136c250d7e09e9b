package sharedlink

import "errors"

var (
	ErrLinkNotFound = errors.New("invalid link")
	ErrLinkExpired  = errors.New("link expired")
	ErrLinkExists   = errors.New("a link already exists for this record")
)
