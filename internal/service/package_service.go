package service

import (
	"context"
	"strings"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/subscription"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PackageService struct {
	repo     subscription.Repository
	users    domain.UserRepository
	auditSvc *AuditService
	log      *zap.Logger
}

func NewPackageService(repo subscription.Repository, users domain.UserRepository, auditSvc *AuditService, log *zap.Logger) *PackageService {
	return &PackageService{repo: repo, users: users, auditSvc: auditSvc, log: log}
}

// List is public so the registration form can offer packages.
func (s *PackageService) List(ctx context.Context) ([]*subscription.Package, error) {
	return s.repo.List(ctx)
}

func (s *PackageService) Get(ctx context.Context, id uuid.UUID) (*subscription.Package, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *PackageService) Create(ctx context.Context, p Principal, cmd *subscription.CreatePackageCommand) (*subscription.Package, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	cmd.Name = strings.TrimSpace(cmd.Name)

	v := &validator{}
	v.check(cmd.Name != "", "name is required")
	v.check(len(cmd.Name) <= 50, "name must be at most 50 characters")
	v.check(cmd.Price >= 0, "price cannot be negative")
	v.check(cmd.MaxStorageMB >= 0 && cmd.MaxUploads >= 0 && cmd.MaxShares >= 0, subscription.ErrNegativeQuota.Error())
	if err := v.err(); err != nil {
		return nil, err
	}

	pkg := &subscription.Package{
		Name:            cmd.Name,
		Price:           cmd.Price,
		CanShare:        cmd.CanShare,
		CanSetReminders: cmd.CanSetReminders,
		CanDelete:       cmd.CanDelete,
		MaxStorageMB:    cmd.MaxStorageMB,
		MaxUploads:      cmd.MaxUploads,
		MaxShares:       cmd.MaxShares,
	}
	if err := s.repo.Create(ctx, pkg); err != nil {
		return nil, err
	}

	s.audit(ctx, p, domain.ActionCreate, pkg.ID, map[string]any{"name": pkg.Name})
	s.log.Info("package created", zap.String("package_id", pkg.ID.String()), zap.String("name", pkg.Name))
	return pkg, nil
}

func (s *PackageService) Update(ctx context.Context, p Principal, id uuid.UUID, cmd *subscription.UpdatePackageCommand) (*subscription.Package, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}

	v := &validator{}
	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		v.check(name != "", "name is required")
		v.check(len(name) <= 50, "name must be at most 50 characters")
		cmd.Name = &name
	}
	if cmd.Price != nil {
		v.check(*cmd.Price >= 0, "price cannot be negative")
	}
	for _, q := range []*int{cmd.MaxStorageMB, cmd.MaxUploads, cmd.MaxShares} {
		if q != nil && *q < 0 {
			v.check(false, subscription.ErrNegativeQuota.Error())
			break
		}
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	pkg, err := s.repo.Update(ctx, id, cmd)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, p, domain.ActionUpdate, id, nil)
	return pkg, nil
}

// Delete refuses while any user still references the package.
func (s *PackageService) Delete(ctx context.Context, p Principal, id uuid.UUID) error {
	if !p.IsAdmin() {
		return ErrForbidden
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	n, err := s.users.CountByPackage(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return subscription.ErrPackageInUse
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, p, domain.ActionDelete, id, nil)
	return nil
}

func (s *PackageService) audit(ctx context.Context, p Principal, action domain.AuditAction, id uuid.UUID, changes map[string]any) {
	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        p,
		Action:       action,
		ResourceType: "package",
		ResourceID:   id.String(),
		Changes:      changes,
	})
}
