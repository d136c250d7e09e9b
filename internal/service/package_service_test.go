package service

import (
	"context"
	"errors"
	"testing"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/subscription"
	"go.uber.org/zap"
)

func TestPackageLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewPackageService(env.pkgs, env.users, env.audit, zap.NewNop())
	admin := env.seedUser(t, "admin", domain.RoleAdmin, nil)
	doc := env.seedUser(t, "doc", domain.RoleDoctor, nil)

	var verr *ValidationError
	if _, err := svc.Create(ctx, as(admin), &subscription.CreatePackageCommand{Name: "Basic", MaxUploads: -1}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for negative quota, got %v", err)
	}
	if _, err := svc.Create(ctx, as(doc), &subscription.CreatePackageCommand{Name: "Basic"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for doctor, got %v", err)
	}

	pkg, err := svc.Create(ctx, as(admin), &subscription.CreatePackageCommand{Name: " Basic ", Price: 99, MaxUploads: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if pkg.Name != "Basic" {
		t.Fatalf("expected trimmed name, got %q", pkg.Name)
	}
	if _, err := svc.Create(ctx, as(admin), &subscription.CreatePackageCommand{Name: "Basic"}); !errors.Is(err, subscription.ErrPackageNameTaken) {
		t.Fatalf("expected name taken, got %v", err)
	}

	shares := 4
	updated, err := svc.Update(ctx, as(admin), pkg.ID, &subscription.UpdatePackageCommand{MaxShares: &shares})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.MaxShares != 4 || updated.MaxUploads != 3 {
		t.Fatalf("unexpected package after update %+v", updated)
	}

	env.seedUser(t, "pat", domain.RolePatient, pkg)
	if err := svc.Delete(ctx, as(admin), pkg.ID); !errors.Is(err, subscription.ErrPackageInUse) {
		t.Fatalf("expected package in use, got %v", err)
	}

	spare, err := svc.Create(ctx, as(admin), &subscription.CreatePackageCommand{Name: "Spare"})
	if err != nil {
		t.Fatalf("create spare: %v", err)
	}
	if err := svc.Delete(ctx, as(admin), spare.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, as(admin), spare.ID); !errors.Is(err, subscription.ErrPackageNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}
