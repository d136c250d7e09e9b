package reminder

import "errors"

var (
	ErrReminderNotFound = errors.New("reminder not found")
	ErrInvalidRecipient = errors.New("reminder must target exactly one doctor or patient")
	ErrTitleRequired    = errors.New("reminder title is required")
	ErrTitleTooLong     = errors.New("reminder title must be at most 255 characters")
	ErrDateRequired     = errors.New("reminder date is required")
)
