package domain

import "errors"

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUsernameTaken   = errors.New("username is already taken")
	ErrInvalidRole     = errors.New("invalid role")
	ErrUserHasRecords  = errors.New("user still owns or authored records")
	ErrRoleLocked      = errors.New("role cannot change while the user has records or doctor-patient assignments")
	ErrPatientRequired = errors.New("user is not a patient")
	ErrDoctorRequired  = errors.New("user is not a doctor")
)
