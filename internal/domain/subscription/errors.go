package subscription

import "errors"

var (
	ErrPackageNotFound  = errors.New("package not found")
	ErrPackageInUse     = errors.New("package is assigned to one or more users")
	ErrPackageNameTaken = errors.New("package with this name already exists")
	ErrNegativeQuota    = errors.New("quota values cannot be negative")
)
