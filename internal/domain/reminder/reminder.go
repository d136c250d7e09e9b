package reminder

import (
	"strings"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/google/uuid"
)

// Reminder is addressed to exactly one of a doctor or a patient.
// Notified only ever moves from false to true.
type Reminder struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	Title string    `gorm:"column:title;type:varchar(255);not null"`
	Date  time.Time `gorm:"column:date;not null;index"`

	DoctorID  *uuid.UUID   `gorm:"column:doctor_id;type:uuid;index"`
	Doctor    *domain.User `gorm:"foreignKey:DoctorID;constraint:OnDelete:CASCADE"`
	PatientID *uuid.UUID   `gorm:"column:patient_id;type:uuid;index"`
	Patient   *domain.User `gorm:"foreignKey:PatientID;constraint:OnDelete:CASCADE"`

	Notified bool `gorm:"column:notified;not null;default:false;index"`

	// Lease taken by a scanner run before dispatch
	ClaimedUntil *time.Time `gorm:"column:claimed_until"`

	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null"`
}

func (Reminder) TableName() string {
	return "reminders"
}

// Recipient picks the doctor when set, else the patient. Nil means nobody.
func (r *Reminder) Recipient() *domain.User {
	if r.Doctor != nil {
		return r.Doctor
	}
	return r.Patient
}

// Cursor marks the last reminder seen by a paginated due scan.
type Cursor struct {
	Date time.Time
	ID   uuid.UUID
}

func (r *Reminder) Cursor() Cursor {
	return Cursor{Date: r.Date, ID: r.ID}
}

type CreateReminderCommand struct {
	Title     string
	Date      time.Time
	PatientID *uuid.UUID
}

func (c *CreateReminderCommand) Validate() error {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		return ErrTitleRequired
	}
	if len(title) > 255 {
		return ErrTitleTooLong
	}
	if c.Date.IsZero() {
		return ErrDateRequired
	}
	return nil
}
