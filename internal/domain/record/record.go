package record

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/google/uuid"
)

// Accepted prescription formats, keyed by lower-case extension.
var AllowedExtensions = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// Record is a prescription file owned by a patient and attributed to a doctor.
// Rows are soft-deleted through IsDeleted and never removed by normal flow.
type Record struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	PatientID uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index"`
	DoctorID  uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;index"`

	FileKey     string `gorm:"column:file_key;type:varchar(512);not null"`
	FileName    string `gorm:"column:file_name;type:varchar(255);not null"`
	ContentType string `gorm:"column:content_type;type:varchar(100)"`
	SizeBytes   int64  `gorm:"column:size_bytes;not null;default:0"`

	Description string    `gorm:"column:description;type:text"`
	UploadDate  time.Time `gorm:"column:upload_date;autoCreateTime;index"`
	IsDeleted   bool      `gorm:"column:is_deleted;not null;default:false;index"`

	SharedWith []domain.User `gorm:"many2many:record_shares;joinForeignKey:RecordID;joinReferences:UserID"`
}

func (Record) TableName() string {
	return "records"
}

// SharedWithIDs returns the ids of every user the record is shared with.
func (r *Record) SharedWithIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.SharedWith))
	for _, u := range r.SharedWith {
		ids = append(ids, u.ID)
	}
	return ids
}

func (r *Record) IsSharedWith(userID uuid.UUID) bool {
	for _, u := range r.SharedWith {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// ValidateFile checks the name and size of an incoming prescription file.
func ValidateFile(fileName string, size, maxBytes int64) error {
	if strings.TrimSpace(fileName) == "" {
		return ErrFileRequired
	}
	if _, ok := AllowedExtensions[strings.ToLower(filepath.Ext(fileName))]; !ok {
		return ErrUnsupportedFileType
	}
	if size <= 0 {
		return ErrFileRequired
	}
	if maxBytes > 0 && size > maxBytes {
		return ErrFileTooLarge
	}
	return nil
}

type UploadRecordCommand struct {
	PatientID   uuid.UUID
	DoctorID    uuid.UUID
	Description string
	FileName    string
	SizeBytes   int64
}

type ListRecordsQuery struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID

	// VisibleTo matches records the user authored or that were shared with them.
	VisibleTo *uuid.UUID

	Page     int
	PageSize int
}

type PagedRecords struct {
	Records    []*Record
	TotalCount int64
	Page       int
	PageSize   int
	TotalPages int
}
