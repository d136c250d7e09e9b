// Package entitlement decides whether a user may perform a quota-gated action
// and reports current usage. Everything here is pure: callers load the user
// (with package) and the usage figures first.
package entitlement

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
)

type Feature string

const (
	FeatureShare        Feature = "can_share"
	FeatureSetReminders Feature = "can_set_reminders"
	FeatureDelete       Feature = "can_delete"
)

func (f Feature) IsValid() bool {
	switch f {
	case FeatureShare, FeatureSetReminders, FeatureDelete:
		return true
	}
	return false
}

const bytesPerMB = 1024 * 1024

var (
	// ErrQuotaExceeded is wrapped by every cap-reached error.
	ErrQuotaExceeded = errors.New("quota exceeded")

	ErrNoPackage           = errors.New("no package assigned")
	ErrFeatureDisabled     = errors.New("feature is not enabled for this account")
	ErrUploadsNotAllowed   = errors.New("your package does not allow uploads")
	ErrUploadLimitReached  = fmt.Errorf("%w: you have reached your upload limit", ErrQuotaExceeded)
	ErrStorageLimitReached = fmt.Errorf("%w: you have exceeded your storage limit", ErrQuotaExceeded)
	ErrShareLimitReached   = fmt.Errorf("%w: share limit reached for your package", ErrQuotaExceeded)
)

// Effective resolves a feature flag: a non-nil user override wins, then the
// package flag, and without a package the answer is false.
func Effective(u *domain.User, f Feature) bool {
	if u == nil {
		return false
	}

	var override *bool
	switch f {
	case FeatureShare:
		override = u.CanShare
	case FeatureSetReminders:
		override = u.CanSetReminders
	case FeatureDelete:
		override = u.CanDelete
	default:
		return false
	}
	if override != nil {
		return *override
	}

	if u.Package == nil {
		return false
	}
	switch f {
	case FeatureShare:
		return u.Package.CanShare
	case FeatureSetReminders:
		return u.Package.CanSetReminders
	default:
		return u.Package.CanDelete
	}
}

// FileStat is what the blob store reported for one live record.
type FileStat struct {
	SizeBytes int64
	Exists    bool
}

type Usage struct {
	Uploads       int
	UsedStorageMB float64
}

// ComputeUsage counts every live record as an upload but only sums the sizes
// of files that are actually retrievable. Missing files count as zero.
func ComputeUsage(files []FileStat) Usage {
	var total int64
	for _, f := range files {
		if f.Exists && f.SizeBytes > 0 {
			total += f.SizeBytes
		}
	}
	return Usage{
		Uploads:       len(files),
		UsedStorageMB: float64(total) / bytesPerMB,
	}
}

// CheckUpload evaluates the upload rules in order; the first failure wins.
func CheckUpload(u *domain.User, usage Usage, incomingBytes int64) error {
	if u == nil || u.Package == nil {
		return ErrNoPackage
	}
	pkg := u.Package

	if pkg.MaxUploads == 0 {
		return ErrUploadsNotAllowed
	}
	if pkg.MaxUploads > 0 && usage.Uploads >= pkg.MaxUploads {
		return ErrUploadLimitReached
	}
	if pkg.MaxStorageMB > 0 {
		incomingMB := float64(incomingBytes) / bytesPerMB
		if usage.UsedStorageMB+incomingMB > float64(pkg.MaxStorageMB) {
			return ErrStorageLimitReached
		}
	}
	return nil
}

// CheckShare gates adding one more recipient to a record already shared
// with sharedCount users.
func CheckShare(u *domain.User, sharedCount int64) error {
	if !Effective(u, FeatureShare) {
		return ErrFeatureDisabled
	}
	if u.Package != nil && u.Package.MaxShares > 0 && sharedCount >= int64(u.Package.MaxShares) {
		return ErrShareLimitReached
	}
	return nil
}

func CheckReminder(u *domain.User) error {
	if !Effective(u, FeatureSetReminders) {
		return ErrFeatureDisabled
	}
	return nil
}

func CheckDelete(u *domain.User) error {
	if !Effective(u, FeatureDelete) {
		return ErrFeatureDisabled
	}
	return nil
}

// Quota is a remaining allowance: either a number or Unlimited. Never do
// arithmetic on it without checking Unlimited first.
type Quota struct {
	value     float64
	unlimited bool
}

func Unlimited() Quota            { return Quota{unlimited: true} }
func Remaining(v float64) Quota   { return Quota{value: v} }
func (q Quota) IsUnlimited() bool { return q.unlimited }
func (q Quota) Value() float64    { return q.value }

func (q Quota) String() string {
	if q.unlimited {
		return "Unlimited"
	}
	return fmt.Sprintf("%g", q.value)
}

func (q Quota) MarshalJSON() ([]byte, error) {
	if q.unlimited {
		return json.Marshal("Unlimited")
	}
	return json.Marshal(q.value)
}

// Summary mirrors the package_info payload shown to patients.
type Summary struct {
	PackageName        string  `json:"package_name"`
	MaxUploads         int     `json:"max_uploads"`
	MaxStorageMB       int     `json:"max_storage_mb"`
	MaxShares          int     `json:"max_shares"`
	CurrentUploads     int     `json:"current_uploads"`
	UsedStorageMB      float64 `json:"used_storage_mb"`
	AvailableUploads   Quota   `json:"available_uploads"`
	AvailableStorageMB Quota   `json:"available_storage_mb"`
	CanShare           bool    `json:"can_share"`
	CanSetReminders    bool    `json:"can_set_reminders"`
	CanDelete          bool    `json:"can_delete"`
}

// Summarize returns nil when the user has no package.
func Summarize(u *domain.User, usage Usage) *Summary {
	if u == nil || u.Package == nil {
		return nil
	}
	pkg := u.Package

	s := &Summary{
		PackageName:        pkg.Name,
		MaxUploads:         pkg.MaxUploads,
		MaxStorageMB:       pkg.MaxStorageMB,
		MaxShares:          pkg.MaxShares,
		CurrentUploads:     usage.Uploads,
		UsedStorageMB:      usage.UsedStorageMB,
		AvailableUploads:   Unlimited(),
		AvailableStorageMB: Unlimited(),
		CanShare:           Effective(u, FeatureShare),
		CanSetReminders:    Effective(u, FeatureSetReminders),
		CanDelete:          Effective(u, FeatureDelete),
	}
	if pkg.MaxUploads > 0 {
		s.AvailableUploads = Remaining(float64(pkg.MaxUploads - usage.Uploads))
	}
	if pkg.MaxStorageMB > 0 {
		s.AvailableStorageMB = Remaining(float64(pkg.MaxStorageMB) - usage.UsedStorageMB)
	}
	return s
}
