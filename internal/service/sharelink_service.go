package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/record"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/sharedlink"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/entitlement"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/blobstore"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const tokenBytes = 32

type ShareLinkService struct {
	links    sharedlink.Repository
	records  record.Repository
	users    domain.UserRepository
	blobs    blobstore.Store
	metrics  *metrics.Collector
	auditSvc *AuditService
	log      *zap.Logger

	ttl time.Duration
	now func() time.Time
}

// NewShareLinkService wires the link issuer. m may be nil.
func NewShareLinkService(
	links sharedlink.Repository,
	records record.Repository,
	users domain.UserRepository,
	blobs blobstore.Store,
	m *metrics.Collector,
	auditSvc *AuditService,
	log *zap.Logger,
	ttl time.Duration,
) *ShareLinkService {
	return &ShareLinkService{
		links:    links,
		records:  records,
		users:    users,
		blobs:    blobs,
		metrics:  m,
		auditSvc: auditSvc,
		log:      log,
		ttl:      ttl,
		now:      time.Now,
	}
}

// IssueForRecord authorizes the caller and hands out the record's link.
// Only the owning patient or the attributed doctor may issue, and only
// while their share entitlement holds.
func (s *ShareLinkService) IssueForRecord(ctx context.Context, p Principal, recordID uuid.UUID) (*sharedlink.SharedLink, error) {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.PatientID != p.UserID && rec.DoctorID != p.UserID {
		return nil, ErrForbidden
	}

	actor, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if !entitlement.Effective(actor, entitlement.FeatureShare) {
		if s.metrics != nil {
			s.metrics.EntitlementDenials.WithLabelValues("share_link", "feature_disabled").Inc()
		}
		return nil, entitlement.ErrFeatureDisabled
	}

	link, err := s.Issue(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        p,
		Action:       domain.ActionCreate,
		ResourceType: "shared_link",
		ResourceID:   rec.ID.String(),
		Changes:      map[string]any{"expires_at": link.ExpiresAt},
	})
	return link, nil
}

// Issue returns the record's single link: an unexpired one is reused, an
// expired one is refreshed in place, otherwise a new row is created.
func (s *ShareLinkService) Issue(ctx context.Context, recordID uuid.UUID) (*sharedlink.SharedLink, error) {
	ctx, span := tracer.Start(ctx, "ShareLinkService.Issue")
	defer span.End()
	span.SetAttributes(attribute.String("record_id", recordID.String()))

	// A lost race on create or refresh means another caller just produced a
	// valid link, so the second pass returns it.
	for attempt := 0; attempt < 2; attempt++ {
		now := s.now()

		existing, err := s.links.GetByRecordID(ctx, recordID)
		switch {
		case err == nil && existing.IsValidAt(now):
			s.issued("reused")
			return existing, nil

		case err == nil:
			token, err := newToken()
			if err != nil {
				return nil, err
			}
			expires := now.Add(s.ttl).UTC()
			ok, err := s.links.Refresh(ctx, existing.ID, existing.Token, token, expires)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			existing.Token, existing.ExpiresAt = token, expires
			s.issued("refreshed")
			return existing, nil

		case errors.Is(err, sharedlink.ErrLinkNotFound):
			token, err := newToken()
			if err != nil {
				return nil, err
			}
			link := &sharedlink.SharedLink{Token: token, RecordID: recordID, ExpiresAt: now.Add(s.ttl).UTC()}
			err = s.links.Create(ctx, link)
			if errors.Is(err, sharedlink.ErrLinkExists) {
				continue
			}
			if err != nil {
				return nil, err
			}
			s.issued("created")
			return link, nil

		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("issuing link for record %s: concurrent updates did not settle", recordID)
}

// Resolve validates a token and returns the link with its record.
func (s *ShareLinkService) Resolve(ctx context.Context, token string) (*sharedlink.SharedLink, error) {
	ctx, span := tracer.Start(ctx, "ShareLinkService.Resolve")
	defer span.End()

	link, err := s.links.GetByToken(ctx, token)
	if err != nil {
		s.resolved(err)
		return nil, err
	}
	if !link.IsValidAt(s.now()) {
		s.resolved(sharedlink.ErrLinkExpired)
		return nil, sharedlink.ErrLinkExpired
	}
	if link.Record.IsDeleted {
		s.resolved(record.ErrFileUnavailable)
		return nil, record.ErrFileUnavailable
	}

	ok, err := s.blobs.Exists(ctx, link.Record.FileKey)
	if err != nil {
		return nil, fmt.Errorf("checking file: %w", err)
	}
	if !ok {
		s.log.Warn("shared record file missing", zap.String("record_id", link.RecordID.String()))
		s.resolved(record.ErrFileUnavailable)
		return nil, record.ErrFileUnavailable
	}

	s.resolved(nil)
	return link, nil
}

// Open resolves the token and streams the file. Callers close the reader.
func (s *ShareLinkService) Open(ctx context.Context, token string) (*sharedlink.SharedLink, io.ReadCloser, error) {
	link, err := s.Resolve(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, link.Record.FileKey)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, record.ErrFileUnavailable
	}
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        Principal{RequestID: "shared-link"},
		Action:       domain.ActionRead,
		ResourceType: "record",
		ResourceID:   link.RecordID.String(),
		Changes:      map[string]any{"via": "shared_link"},
	})
	return link, rc, nil
}

func (s *ShareLinkService) issued(kind string) {
	if s.metrics != nil {
		s.metrics.ShareLinksIssued.WithLabelValues(kind).Inc()
	}
}

func (s *ShareLinkService) resolved(err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, sharedlink.ErrLinkNotFound):
		outcome = "not_found"
	case errors.Is(err, sharedlink.ErrLinkExpired):
		outcome = "expired"
	case errors.Is(err, record.ErrFileUnavailable):
		outcome = "file_unavailable"
	case err != nil:
		outcome = "error"
	}
	s.metrics.ShareLinksResolved.WithLabelValues(outcome).Inc()
}

// newToken returns 256 random bits, URL-safe.
func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
