package service

import (
	"context"
	"strings"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/record"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/subscription"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/entitlement"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UserService struct {
	users    domain.UserRepository
	packages subscription.Repository
	records  record.Repository
	usage    *UsageCalculator
	auditSvc *AuditService
	log      *zap.Logger
}

func NewUserService(
	users domain.UserRepository,
	packages subscription.Repository,
	records record.Repository,
	usage *UsageCalculator,
	auditSvc *AuditService,
	log *zap.Logger,
) *UserService {
	return &UserService{
		users:    users,
		packages: packages,
		records:  records,
		usage:    usage,
		auditSvc: auditSvc,
		log:      log,
	}
}

func (s *UserService) Profile(ctx context.Context, p Principal) (*domain.User, error) {
	return s.users.GetByID(ctx, p.UserID)
}

type UpdateProfileCommand struct {
	Email *string
	Phone *string
}

func (s *UserService) UpdateProfile(ctx context.Context, p Principal, cmd *UpdateProfileCommand) (*domain.User, error) {
	upd := &domain.UpdateUserCommand{Phone: trimPtr(cmd.Phone)}
	if cmd.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*cmd.Email))
		if !validEmail(email) {
			return nil, &ValidationError{Fields: []string{"a valid email is required"}}
		}
		upd.Email = &email
	}

	u, err := s.users.Update(ctx, p.UserID, upd, nil)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, p, domain.ActionUpdate, u.ID, map[string]any{"email": cmd.Email != nil, "phone": cmd.Phone != nil})
	return u, nil
}

// PackageSummary reports the caller's package with current usage.
func (s *UserService) PackageSummary(ctx context.Context, p Principal) (*entitlement.Summary, error) {
	u, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if u.Package == nil {
		return nil, entitlement.ErrNoPackage
	}
	usage, err := s.usage.ForPatient(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return entitlement.Summarize(u, usage), nil
}

func (s *UserService) ListDoctors(ctx context.Context) ([]*domain.User, error) {
	role := domain.RoleDoctor
	page, err := s.users.List(ctx, &domain.ListUsersQuery{Role: &role, PageSize: 100})
	if err != nil {
		return nil, err
	}
	return page.Users, nil
}

func (s *UserService) ListMyPatients(ctx context.Context, p Principal) ([]*domain.User, error) {
	if !p.IsDoctor() {
		return nil, ErrForbidden
	}
	return s.users.ListPatientsOf(ctx, p.UserID)
}

// ListAllPatients lets doctors find patients to assign or upload for.
func (s *UserService) ListAllPatients(ctx context.Context, p Principal, search string, page, pageSize int) (*domain.PagedUsers, error) {
	if !p.IsDoctor() && !p.IsAdmin() {
		return nil, ErrForbidden
	}
	role := domain.RolePatient
	return s.users.List(ctx, &domain.ListUsersQuery{Role: &role, Search: search, Page: page, PageSize: pageSize})
}

// CreatePatient creates a patient account and assigns it to the calling doctor.
func (s *UserService) CreatePatient(ctx context.Context, p Principal, cmd *domain.CreateUserCommand) (*domain.User, error) {
	if !p.IsDoctor() {
		return nil, ErrForbidden
	}
	cmd.Role = domain.RolePatient
	cmd.CanShare, cmd.CanSetReminders, cmd.CanDelete = nil, nil, nil

	u, err := s.create(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if err := s.users.AssignPatient(ctx, p.UserID, u.ID); err != nil {
		return nil, err
	}
	s.audit(ctx, p, domain.ActionCreate, u.ID, map[string]any{"assigned_to": p.UserID.String()})
	return u, nil
}

// UpdatePatient edits contact details of a patient assigned to the doctor.
// An unassigned patient is reported as not found.
func (s *UserService) UpdatePatient(ctx context.Context, p Principal, patientID uuid.UUID, cmd *UpdateProfileCommand) (*domain.User, error) {
	if !p.IsDoctor() {
		return nil, ErrForbidden
	}
	ok, err := s.users.IsAssigned(ctx, p.UserID, patientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return s.UpdateProfile(ctx, Principal{UserID: patientID, Role: domain.RolePatient, IP: p.IP, RequestID: p.RequestID}, cmd)
}

func (s *UserService) AssignPatient(ctx context.Context, p Principal, patientID uuid.UUID) error {
	if !p.IsDoctor() {
		return ErrForbidden
	}
	if _, err := s.loadPatient(ctx, patientID); err != nil {
		return err
	}
	if err := s.users.AssignPatient(ctx, p.UserID, patientID); err != nil {
		return err
	}
	s.audit(ctx, p, domain.ActionUpdate, patientID, map[string]any{"assigned_to": p.UserID.String()})
	return nil
}

func (s *UserService) UnassignPatient(ctx context.Context, p Principal, patientID uuid.UUID) error {
	if !p.IsDoctor() {
		return ErrForbidden
	}
	if _, err := s.loadPatient(ctx, patientID); err != nil {
		return err
	}
	if err := s.users.UnassignPatient(ctx, p.UserID, patientID); err != nil {
		return err
	}
	s.audit(ctx, p, domain.ActionUpdate, patientID, map[string]any{"unassigned_from": p.UserID.String()})
	return nil
}

func (s *UserService) ListUsers(ctx context.Context, p Principal, q *domain.ListUsersQuery) (*domain.PagedUsers, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.users.List(ctx, q)
}

func (s *UserService) GetUser(ctx context.Context, p Principal, id uuid.UUID) (*domain.User, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.users.GetByID(ctx, id)
}

func (s *UserService) CreateUser(ctx context.Context, p Principal, cmd *domain.CreateUserCommand) (*domain.User, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	u, err := s.create(ctx, cmd)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, p, domain.ActionCreate, u.ID, map[string]any{"role": string(u.Role)})
	return u, nil
}

func (s *UserService) UpdateUser(ctx context.Context, p Principal, id uuid.UUID, cmd *domain.UpdateUserCommand) (*domain.User, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}

	v := &validator{}
	if cmd.Role != nil {
		v.check(cmd.Role.IsValid(), "role must be admin, doctor or patient")
	}
	if cmd.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*cmd.Email))
		v.check(validEmail(email), "a valid email is required")
		cmd.Email = &email
	}
	for _, col := range cmd.ClearOverrides {
		v.check(entitlement.Feature(col).IsValid(), "unknown override "+col)
	}
	if cmd.Password != nil {
		if err := validatePasswordStrength(*cmd.Password); err != nil {
			v.fields = append(v.fields, err.Error())
		}
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	if cmd.PackageID != nil && !cmd.ClearPackage {
		if _, err := s.packages.GetByID(ctx, *cmd.PackageID); err != nil {
			return nil, err
		}
	}

	if cmd.Role != nil {
		if err := s.checkRoleChange(ctx, id, *cmd.Role); err != nil {
			return nil, err
		}
	}

	var hash *string
	if cmd.Password != nil {
		h, err := hashPassword(*cmd.Password)
		if err != nil {
			return nil, err
		}
		hash = &h
	}

	u, err := s.users.Update(ctx, id, cmd, hash)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, p, domain.ActionUpdate, id, updateChanges(cmd))
	return u, nil
}

// checkRoleChange keeps records and assignments consistent with the roles
// they were created under.
func (s *UserService) checkRoleChange(ctx context.Context, id uuid.UUID, role domain.Role) error {
	current, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Role == role {
		return nil
	}
	n, err := s.records.CountByUser(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return domain.ErrRoleLocked
	}
	n, err = s.users.CountAssignments(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return domain.ErrRoleLocked
	}
	return nil
}

// DeleteUser refuses while the user still owns or authored records.
func (s *UserService) DeleteUser(ctx context.Context, p Principal, id uuid.UUID) error {
	if !p.IsAdmin() {
		return ErrForbidden
	}
	if id == p.UserID {
		return &ValidationError{Fields: []string{"administrators cannot delete themselves"}}
	}
	n, err := s.records.CountByUser(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return domain.ErrUserHasRecords
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, p, domain.ActionDelete, id, nil)
	s.log.Info("user deleted", zap.String("user_id", id.String()), zap.String("by", p.UserID.String()))
	return nil
}

func (s *UserService) create(ctx context.Context, cmd *domain.CreateUserCommand) (*domain.User, error) {
	cmd.Username = strings.TrimSpace(cmd.Username)
	cmd.Email = strings.ToLower(strings.TrimSpace(cmd.Email))

	v := &validator{}
	v.check(cmd.Username != "", "username is required")
	v.check(validEmail(cmd.Email), "a valid email is required")
	v.check(cmd.Role.IsValid(), "role must be admin, doctor or patient")
	if err := validatePasswordStrength(cmd.Password); err != nil {
		v.fields = append(v.fields, err.Error())
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	if cmd.PackageID != nil {
		if _, err := s.packages.GetByID(ctx, *cmd.PackageID); err != nil {
			return nil, err
		}
	}

	hash, err := hashPassword(cmd.Password)
	if err != nil {
		return nil, err
	}

	u := &domain.User{
		Username:        cmd.Username,
		Email:           cmd.Email,
		PasswordHash:    hash,
		Role:            cmd.Role,
		Phone:           strings.TrimSpace(cmd.Phone),
		PackageID:       cmd.PackageID,
		CanShare:        cmd.CanShare,
		CanSetReminders: cmd.CanSetReminders,
		CanDelete:       cmd.CanDelete,
		IsActive:        true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, u.ID)
}

func (s *UserService) loadPatient(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.IsPatient() {
		return nil, domain.ErrPatientRequired
	}
	return u, nil
}

func (s *UserService) audit(ctx context.Context, p Principal, action domain.AuditAction, id uuid.UUID, changes map[string]any) {
	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        p,
		Action:       action,
		ResourceType: "user",
		ResourceID:   id.String(),
		Changes:      changes,
	})
}

func updateChanges(cmd *domain.UpdateUserCommand) map[string]any {
	c := map[string]any{}
	if cmd.Role != nil {
		c["role"] = string(*cmd.Role)
	}
	if cmd.ClearPackage {
		c["package_id"] = nil
	} else if cmd.PackageID != nil {
		c["package_id"] = cmd.PackageID.String()
	}
	for name, v := range map[string]*bool{
		"can_share":         cmd.CanShare,
		"can_set_reminders": cmd.CanSetReminders,
		"can_delete":        cmd.CanDelete,
	} {
		if v != nil {
			c[name] = *v
		}
	}
	for _, col := range cmd.ClearOverrides {
		c[col] = nil
	}
	if cmd.Password != nil {
		c["password"] = "changed"
	}
	return c
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
