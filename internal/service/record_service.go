package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/record"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/entitlement"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/blobstore"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/metrics"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("medvault/service")

// sniffLen covers the magic bytes of every accepted format.
const sniffLen = 3072

var allowedMIME = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
}

type RecordService struct {
	records  record.Repository
	users    domain.UserRepository
	blobs    blobstore.Store
	usage    *UsageCalculator
	metrics  *metrics.Collector
	auditSvc *AuditService
	log      *zap.Logger

	maxUploadBytes int64
}

// NewRecordService wires the record flows. m may be nil.
func NewRecordService(
	records record.Repository,
	users domain.UserRepository,
	blobs blobstore.Store,
	usage *UsageCalculator,
	m *metrics.Collector,
	auditSvc *AuditService,
	log *zap.Logger,
	maxUploadBytes int64,
) *RecordService {
	return &RecordService{
		records:        records,
		users:          users,
		blobs:          blobs,
		usage:          usage,
		metrics:        m,
		auditSvc:       auditSvc,
		log:            log,
		maxUploadBytes: maxUploadBytes,
	}
}

type UploadCommand struct {
	// PatientID is required when a doctor uploads.
	PatientID *uuid.UUID
	// DoctorID is required when a patient uploads.
	DoctorID *uuid.UUID

	Description string
	FileName    string
	Size        int64
	Content     io.Reader
}

// Upload stores a prescription file. The quota is charged to the owning
// patient and re-checked inside the insert transaction.
func (s *RecordService) Upload(ctx context.Context, p Principal, cmd *UploadCommand) (rec *record.Record, err error) {
	ctx, span := tracer.Start(ctx, "RecordService.Upload")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	patient, doctorID, err := s.resolveUploadParties(ctx, p, cmd)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("patient_id", patient.ID.String()))

	if err := record.ValidateFile(cmd.FileName, cmd.Size, s.maxUploadBytes); err != nil {
		return nil, err
	}
	if cmd.Content == nil {
		return nil, record.ErrFileRequired
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(cmd.Content, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	head = head[:n]
	mt := mimetype.Detect(head)
	contentType := strings.SplitN(mt.String(), ";", 2)[0]
	if !allowedMIME[contentType] {
		return nil, record.ErrUnsupportedFileType
	}

	usage, err := s.usage.ForPatient(ctx, patient.ID)
	if err != nil {
		return nil, err
	}
	if err := entitlement.CheckUpload(patient, usage, cmd.Size); err != nil {
		s.denied("upload", err)
		return nil, err
	}

	id := uuid.New()
	ext := strings.ToLower(filepath.Ext(cmd.FileName))
	key := fmt.Sprintf("prescriptions/%s/%s%s", patient.ID, id, ext)

	body := io.MultiReader(bytes.NewReader(head), cmd.Content)
	if err := s.blobs.Put(ctx, key, body, cmd.Size, contentType); err != nil {
		return nil, fmt.Errorf("storing file: %w", err)
	}

	rec = &record.Record{
		ID:          id,
		PatientID:   patient.ID,
		DoctorID:    doctorID,
		FileKey:     key,
		FileName:    filepath.Base(cmd.FileName),
		ContentType: contentType,
		SizeBytes:   cmd.Size,
		Description: strings.TrimSpace(cmd.Description),
	}
	err = s.records.CreateGuarded(ctx, rec, func(live []*record.Record) error {
		usage, err := s.usage.Usage(ctx, live)
		if err != nil {
			return err
		}
		return entitlement.CheckUpload(patient, usage, cmd.Size)
	})
	if err != nil {
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), key); derr != nil {
			s.log.Error("failed to remove orphaned upload", zap.String("key", key), zap.Error(derr))
		}
		if isEntitlementDenial(err) {
			s.denied("upload", err)
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordsUploadedTotal.Inc()
	}
	s.audit(ctx, p, domain.ActionCreate, rec.ID, map[string]any{
		"patient_id": rec.PatientID.String(),
		"doctor_id":  rec.DoctorID.String(),
		"size_bytes": rec.SizeBytes,
	})
	s.log.Info("record uploaded",
		zap.String("record_id", rec.ID.String()),
		zap.String("patient_id", rec.PatientID.String()),
		zap.Int64("size_bytes", rec.SizeBytes),
	)
	return rec, nil
}

// resolveUploadParties returns the owning patient (with package) and the
// attributed doctor id.
func (s *RecordService) resolveUploadParties(ctx context.Context, p Principal, cmd *UploadCommand) (*domain.User, uuid.UUID, error) {
	switch {
	case p.IsPatient():
		if cmd.DoctorID == nil {
			return nil, uuid.Nil, &ValidationError{Fields: []string{"doctor_id is required"}}
		}
		doctor, err := s.users.GetByID(ctx, *cmd.DoctorID)
		if err != nil {
			return nil, uuid.Nil, err
		}
		if !doctor.IsDoctor() {
			return nil, uuid.Nil, domain.ErrDoctorRequired
		}
		patient, err := s.users.GetByID(ctx, p.UserID)
		if err != nil {
			return nil, uuid.Nil, err
		}
		return patient, doctor.ID, nil

	case p.IsDoctor():
		if cmd.PatientID == nil {
			return nil, uuid.Nil, &ValidationError{Fields: []string{"patient_id is required"}}
		}
		patient, err := s.users.GetByID(ctx, *cmd.PatientID)
		if err != nil {
			return nil, uuid.Nil, err
		}
		if !patient.IsPatient() {
			return nil, uuid.Nil, domain.ErrPatientRequired
		}
		ok, err := s.users.IsAssigned(ctx, p.UserID, patient.ID)
		if err != nil {
			return nil, uuid.Nil, err
		}
		if !ok {
			return nil, uuid.Nil, ErrForbidden
		}
		return patient, p.UserID, nil
	}
	return nil, uuid.Nil, ErrForbidden
}

// List returns the records visible to the caller: patients see their own,
// doctors see what they authored or was shared with them, admins see all.
func (s *RecordService) List(ctx context.Context, p Principal, page, pageSize int) (*record.PagedRecords, error) {
	q := &record.ListRecordsQuery{Page: page, PageSize: pageSize}
	switch {
	case p.IsPatient():
		q.PatientID = &p.UserID
	case p.IsDoctor():
		q.VisibleTo = &p.UserID
	case p.IsAdmin():
	default:
		return nil, ErrForbidden
	}
	return s.records.List(ctx, q)
}

// ListForPatient shows a doctor the records they authored for one patient.
func (s *RecordService) ListForPatient(ctx context.Context, p Principal, patientID uuid.UUID, page, pageSize int) (*record.PagedRecords, error) {
	if !p.IsDoctor() {
		return nil, ErrForbidden
	}
	return s.records.List(ctx, &record.ListRecordsQuery{
		PatientID: &patientID,
		DoctorID:  &p.UserID,
		Page:      page,
		PageSize:  pageSize,
	})
}

func (s *RecordService) Get(ctx context.Context, p Principal, id uuid.UUID) (*record.Record, error) {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(p, rec) {
		return nil, ErrForbidden
	}
	s.audit(ctx, p, domain.ActionRead, rec.ID, nil)
	return rec, nil
}

// Open streams the record's file. Callers close the reader.
func (s *RecordService) Open(ctx context.Context, p Principal, id uuid.UUID) (*record.Record, io.ReadCloser, error) {
	rec, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.openBlob(ctx, rec)
	if err != nil {
		return nil, nil, err
	}
	return rec, rc, nil
}

func (s *RecordService) openBlob(ctx context.Context, rec *record.Record) (io.ReadCloser, error) {
	rc, err := s.blobs.Open(ctx, rec.FileKey)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		s.log.Warn("record file missing", zap.String("record_id", rec.ID.String()), zap.String("key", rec.FileKey))
		return nil, record.ErrFileUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	return rc, nil
}

// ShareWithUser adds a doctor to the record's shared_with set. Sharing with
// someone already present is a no-op.
func (s *RecordService) ShareWithUser(ctx context.Context, p Principal, id, targetID uuid.UUID) (*record.Record, error) {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(p, rec) {
		return nil, ErrForbidden
	}

	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !target.IsDoctor() {
		return nil, record.ErrShareTargetInvalid
	}

	actor, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	added, err := s.records.AddShareGuarded(ctx, id, targetID, func(count int64) error {
		return entitlement.CheckShare(actor, count)
	})
	if err != nil {
		if isEntitlementDenial(err) {
			s.denied("share", err)
		}
		return nil, err
	}

	if added {
		s.audit(ctx, p, domain.ActionUpdate, id, map[string]any{"shared_with": targetID.String()})
		s.log.Info("record shared",
			zap.String("record_id", id.String()),
			zap.String("with", targetID.String()),
		)
	}
	return s.records.GetByID(ctx, id)
}

// Delete soft-deletes a record. Admins bypass the delete entitlement.
func (s *RecordService) Delete(ctx context.Context, p Principal, id uuid.UUID) error {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(p, rec) {
		return ErrForbidden
	}

	if !p.IsAdmin() {
		actor, err := s.users.GetByID(ctx, p.UserID)
		if err != nil {
			return err
		}
		if err := entitlement.CheckDelete(actor); err != nil {
			s.denied("delete", err)
			return err
		}
	}

	if err := s.records.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, p, domain.ActionDelete, id, nil)
	s.log.Info("record deleted", zap.String("record_id", id.String()), zap.String("by", p.UserID.String()))
	return nil
}

func (s *RecordService) denied(action string, err error) {
	if s.metrics != nil {
		s.metrics.EntitlementDenials.WithLabelValues(action, denialReason(err)).Inc()
	}
}

func (s *RecordService) audit(ctx context.Context, p Principal, action domain.AuditAction, id uuid.UUID, changes map[string]any) {
	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        p,
		Action:       action,
		ResourceType: "record",
		ResourceID:   id.String(),
		Changes:      changes,
	})
}

// canView: owner, attributed doctor, anyone it is shared with, or an admin.
func canView(p Principal, rec *record.Record) bool {
	return p.IsAdmin() || rec.PatientID == p.UserID || rec.DoctorID == p.UserID || rec.IsSharedWith(p.UserID)
}

// canManage: owner patient, attributed doctor, or an admin.
func canManage(p Principal, rec *record.Record) bool {
	switch {
	case p.IsAdmin():
		return true
	case p.IsPatient():
		return rec.PatientID == p.UserID
	case p.IsDoctor():
		return rec.DoctorID == p.UserID
	}
	return false
}

func isEntitlementDenial(err error) bool {
	return errors.Is(err, entitlement.ErrQuotaExceeded) ||
		errors.Is(err, entitlement.ErrNoPackage) ||
		errors.Is(err, entitlement.ErrFeatureDisabled) ||
		errors.Is(err, entitlement.ErrUploadsNotAllowed)
}

func denialReason(err error) string {
	switch {
	case errors.Is(err, entitlement.ErrNoPackage):
		return "no_package"
	case errors.Is(err, entitlement.ErrFeatureDisabled):
		return "feature_disabled"
	case errors.Is(err, entitlement.ErrUploadsNotAllowed):
		return "uploads_not_allowed"
	case errors.Is(err, entitlement.ErrUploadLimitReached):
		return "upload_limit"
	case errors.Is(err, entitlement.ErrStorageLimitReached):
		return "storage_limit"
	case errors.Is(err, entitlement.ErrShareLimitReached):
		return "share_limit"
	}
	return "other"
}
