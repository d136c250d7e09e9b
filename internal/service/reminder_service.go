package service

import (
	"context"
	"strings"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/reminder"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/entitlement"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ReminderService struct {
	reminders reminder.Repository
	users     domain.UserRepository
	metrics   *metrics.Collector
	auditSvc  *AuditService
	log       *zap.Logger
}

func NewReminderService(reminders reminder.Repository, users domain.UserRepository, m *metrics.Collector, auditSvc *AuditService, log *zap.Logger) *ReminderService {
	return &ReminderService{reminders: reminders, users: users, metrics: m, auditSvc: auditSvc, log: log}
}

// Create schedules a reminder. Doctors need the reminder entitlement and may
// target themselves or an assigned patient; patients always target themselves.
func (s *ReminderService) Create(ctx context.Context, p Principal, cmd *reminder.CreateReminderCommand) (*reminder.Reminder, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	rem := &reminder.Reminder{
		Title:     strings.TrimSpace(cmd.Title),
		Date:      cmd.Date,
		CreatedBy: p.UserID,
	}

	switch {
	case p.IsDoctor():
		doctor, err := s.users.GetByID(ctx, p.UserID)
		if err != nil {
			return nil, err
		}
		if err := entitlement.CheckReminder(doctor); err != nil {
			if s.metrics != nil {
				s.metrics.EntitlementDenials.WithLabelValues("reminder", "feature_disabled").Inc()
			}
			return nil, err
		}
		if cmd.PatientID != nil && *cmd.PatientID != p.UserID {
			ok, err := s.users.IsAssigned(ctx, p.UserID, *cmd.PatientID)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, ErrForbidden
			}
			rem.PatientID = cmd.PatientID
		} else {
			rem.DoctorID = &p.UserID
		}

	case p.IsPatient():
		if cmd.PatientID != nil && *cmd.PatientID != p.UserID {
			return nil, reminder.ErrInvalidRecipient
		}
		rem.PatientID = &p.UserID

	default:
		return nil, ErrForbidden
	}

	if err := s.reminders.Create(ctx, rem); err != nil {
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        p,
		Action:       domain.ActionCreate,
		ResourceType: "reminder",
		ResourceID:   rem.ID.String(),
		Changes:      map[string]any{"date": rem.Date},
	})
	s.log.Info("reminder created",
		zap.String("reminder_id", rem.ID.String()),
		zap.Time("date", rem.Date),
	)
	return rem, nil
}

func (s *ReminderService) List(ctx context.Context, p Principal) ([]*reminder.Reminder, error) {
	return s.reminders.ListForUser(ctx, p.UserID)
}

func (s *ReminderService) Get(ctx context.Context, p Principal, id uuid.UUID) (*reminder.Reminder, error) {
	rem, err := s.reminders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsAdmin() || rem.CreatedBy == p.UserID ||
		(rem.DoctorID != nil && *rem.DoctorID == p.UserID) ||
		(rem.PatientID != nil && *rem.PatientID == p.UserID) {
		return rem, nil
	}
	return nil, ErrForbidden
}
