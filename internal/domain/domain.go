package domain

import (
	"time"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/subscription"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RolePatient:
		return true
	}
	return false
}

// Failed-login lockout policy
const (
	MaxFailedLogins = 5
	LockoutDuration = 15 * time.Minute
)

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	Username     string `gorm:"column:username;type:varchar(150);uniqueIndex;not null"`
	Email        string `gorm:"column:email;type:varchar(255);index"`
	PasswordHash string `gorm:"column:password_hash;type:varchar(255);not null"`
	Role         Role   `gorm:"column:role;type:varchar(30);not null;index"`
	Phone        string `gorm:"column:phone;type:varchar(20)"`

	PackageID *uuid.UUID            `gorm:"column:package_id;type:uuid;index"`
	Package   *subscription.Package `gorm:"foreignKey:PackageID;constraint:OnDelete:SET NULL"`

	// Per-user feature overrides. nil defers to the package.
	CanShare        *bool `gorm:"column:can_share"`
	CanSetReminders *bool `gorm:"column:can_set_reminders"`
	CanDelete       *bool `gorm:"column:can_delete"`

	// Doctor-only: patients explicitly assigned to this doctor
	Patients []*User `gorm:"many2many:doctor_patients;joinForeignKey:DoctorID;joinReferences:PatientID"`

	IsActive          bool       `gorm:"column:is_active;default:true;index"`
	FailedLoginCount  int        `gorm:"column:failed_login_count;default:0"`
	LockedUntil       *time.Time `gorm:"column:locked_until"`
	LastLoginAt       *time.Time `gorm:"column:last_login_at"`
	PasswordChangedAt time.Time  `gorm:"column:password_changed_at"`

	MFAEnabled bool   `gorm:"column:mfa_enabled;default:false"`
	MFASecret  string `gorm:"column:mfa_secret;type:varchar(100)"`
}

func (User) TableName() string {
	return "users"
}

// IsLocked returns true if the account is temporarily locked due to failed logins.
func (u *User) IsLocked() bool {
	return u.LockedUntil != nil && time.Now().Before(*u.LockedUntil)
}

func (u *User) IsDoctor() bool  { return u.Role == RoleDoctor }
func (u *User) IsPatient() bool { return u.Role == RolePatient }
func (u *User) IsAdmin() bool   { return u.Role == RoleAdmin }

type CreateUserCommand struct {
	Username        string
	Email           string
	Password        string
	Role            Role
	Phone           string
	PackageID       *uuid.UUID
	CanShare        *bool
	CanSetReminders *bool
	CanDelete       *bool
}

// UpdateUserCommand carries a partial update. Clear* fields reset the
// matching nullable column to NULL.
type UpdateUserCommand struct {
	Email           *string
	Phone           *string
	Password        *string
	Role            *Role
	PackageID       *uuid.UUID
	ClearPackage    bool
	CanShare        *bool
	CanSetReminders *bool
	CanDelete       *bool
	ClearOverrides  []string
}

type ListUsersQuery struct {
	Role     *Role
	Search   string
	Page     int
	PageSize int
}

type PagedUsers struct {
	Users      []*User
	TotalCount int64
	Page       int
	PageSize   int
	TotalPages int
}

type AuditAction string

const (
	ActionCreate AuditAction = "create"
	ActionRead   AuditAction = "read"
	ActionUpdate AuditAction = "update"
	ActionDelete AuditAction = "delete"
	ActionLogin  AuditAction = "login"
	ActionLogout AuditAction = "logout"
)

type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	OccurredAt time.Time `gorm:"autoCreateTime;index"`

	// Who
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;index"`
	UserRole  Role      `gorm:"column:user_role;type:varchar(30);not null"`
	IPAddress string    `gorm:"column:ip_address;type:varchar(45)"` // Supports IPv6

	// What
	Action       AuditAction `gorm:"column:action;type:varchar(20);not null;index"`
	ResourceType string      `gorm:"column:resource_type;type:varchar(50);not null;index"`
	ResourceID   string      `gorm:"column:resource_id;type:varchar(50);index"`

	RequestID  string `gorm:"column:request_id;type:varchar(50);index"`
	UserAgent  string `gorm:"column:user_agent;type:text"`
	StatusCode int    `gorm:"column:status_code"`

	Changes datatypes.JSON `gorm:"column:changes"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// RevokedToken blacklists a refresh token until it would have expired anyway.
type RevokedToken struct {
	JTI       string    `gorm:"column:jti;type:varchar(64);primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;index"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index"`
	RevokedAt time.Time `gorm:"autoCreateTime"`
}

func (RevokedToken) TableName() string {
	return "revoked_tokens"
}

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"` // Always "Bearer"
}

type Claims struct {
	UserID   uuid.UUID `json:"sub"`
	Username string    `json:"username"`
	Role     Role      `json:"role"`

	// Set on parsed tokens only
	TokenID   string    `json:"jti,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
}
