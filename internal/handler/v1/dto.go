package v1

import (
	"time"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/record"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/reminder"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/sharedlink"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/subscription"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/entitlement"
	"github.com/google/uuid"
)

// UserResponse is the only shape in which users leave the API.
type UserResponse struct {
	ID              uuid.UUID             `json:"id"`
	Username        string                `json:"username"`
	Email           string                `json:"email"`
	Role            domain.Role           `json:"role"`
	Phone           string                `json:"phone,omitempty"`
	Package         *subscription.Package `json:"package,omitempty"`
	CanShare        *bool                 `json:"can_share,omitempty"`
	CanSetReminders *bool                 `json:"can_set_reminders,omitempty"`
	CanDelete       *bool                 `json:"can_delete,omitempty"`
	IsActive        bool                  `json:"is_active"`
	MFAEnabled      bool                  `json:"mfa_enabled"`
	LastLoginAt     *time.Time            `json:"last_login_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
}

func toUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		Role:            u.Role,
		Phone:           u.Phone,
		Package:         u.Package,
		CanShare:        u.CanShare,
		CanSetReminders: u.CanSetReminders,
		CanDelete:       u.CanDelete,
		IsActive:        u.IsActive,
		MFAEnabled:      u.MFAEnabled,
		LastLoginAt:     u.LastLoginAt,
		CreatedAt:       u.CreatedAt,
	}
}

func toUserResponses(users []*domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	return out
}

func toPagedUsers(p *domain.PagedUsers) PagedResponse[UserResponse] {
	return PagedResponse[UserResponse]{
		Items:      toUserResponses(p.Users),
		TotalCount: p.TotalCount,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: p.TotalPages,
	}
}

type AuthResponse struct {
	User        UserResponse         `json:"user"`
	Tokens      *domain.TokenPair    `json:"tokens"`
	PackageInfo *entitlement.Summary `json:"package_info,omitempty"`
}

type RecordResponse struct {
	ID          uuid.UUID   `json:"id"`
	PatientID   uuid.UUID   `json:"patient_id"`
	DoctorID    uuid.UUID   `json:"doctor_id"`
	FileName    string      `json:"file_name"`
	ContentType string      `json:"content_type"`
	SizeBytes   int64       `json:"size_bytes"`
	Description string      `json:"description"`
	UploadDate  time.Time   `json:"upload_date"`
	IsDeleted   bool        `json:"is_deleted"`
	SharedWith  []uuid.UUID `json:"shared_with"`
}

func toRecordResponse(r *record.Record) RecordResponse {
	return RecordResponse{
		ID:          r.ID,
		PatientID:   r.PatientID,
		DoctorID:    r.DoctorID,
		FileName:    r.FileName,
		ContentType: r.ContentType,
		SizeBytes:   r.SizeBytes,
		Description: r.Description,
		UploadDate:  r.UploadDate,
		IsDeleted:   r.IsDeleted,
		SharedWith:  r.SharedWithIDs(),
	}
}

func toPagedRecords(p *record.PagedRecords) PagedResponse[RecordResponse] {
	items := make([]RecordResponse, 0, len(p.Records))
	for _, r := range p.Records {
		items = append(items, toRecordResponse(r))
	}
	return PagedResponse[RecordResponse]{
		Items:      items,
		TotalCount: p.TotalCount,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: p.TotalPages,
	}
}

type ShareLinkResponse struct {
	Link      string    `json:"link"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SharedRecordInfo is the link payload with the full record nested.
type SharedRecordInfo struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Record    RecordResponse `json:"record"`
}

func toSharedRecordInfo(l *sharedlink.SharedLink) SharedRecordInfo {
	return SharedRecordInfo{
		Token:     l.Token,
		ExpiresAt: l.ExpiresAt,
		Record:    toRecordResponse(&l.Record),
	}
}

type ReminderResponse struct {
	ID        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Date      time.Time  `json:"date"`
	DoctorID  *uuid.UUID `json:"doctor_id,omitempty"`
	PatientID *uuid.UUID `json:"patient_id,omitempty"`
	Notified  bool       `json:"notified"`
	CreatedAt time.Time  `json:"created_at"`
}

func toReminderResponse(r *reminder.Reminder) ReminderResponse {
	return ReminderResponse{
		ID:        r.ID,
		Title:     r.Title,
		Date:      r.Date,
		DoctorID:  r.DoctorID,
		PatientID: r.PatientID,
		Notified:  r.Notified,
		CreatedAt: r.CreatedAt,
	}
}
