package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
)

func TestUserCreateAndLookup(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(db)
	pkg := seedPackage(t, db, "Basic")

	u := seedUser(t, db, "alice", domain.RolePatient, pkg)

	got, err := repo.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if got.ID != u.ID || got.Package == nil || got.Package.Name != "Basic" {
		t.Fatalf("expected package preloaded, got %+v", got.Package)
	}

	dup := &domain.User{Username: "alice", PasswordHash: "x", Role: domain.RolePatient}
	if err := repo.Create(ctx, dup); !errors.Is(err, domain.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	if _, err := repo.GetByUsername(ctx, "nobody"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserUpdateOverridesAndPackage(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(db)
	pkg := seedPackage(t, db, "Basic")
	u := seedUser(t, db, "bob", domain.RolePatient, pkg)

	off := false
	got, err := repo.Update(ctx, u.ID, &domain.UpdateUserCommand{CanShare: &off, ClearPackage: true}, nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.CanShare == nil || *got.CanShare {
		t.Fatalf("expected can_share override false, got %v", got.CanShare)
	}
	if got.PackageID != nil || got.Package != nil {
		t.Fatalf("expected package cleared")
	}

	got, err = repo.Update(ctx, u.ID, &domain.UpdateUserCommand{ClearOverrides: []string{"can_share", "bogus"}}, nil)
	if err != nil {
		t.Fatalf("clear overrides: %v", err)
	}
	if got.CanShare != nil {
		t.Fatalf("expected override cleared, got %v", *got.CanShare)
	}
}

func TestLoginLockout(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(db)
	u := seedUser(t, db, "carol", domain.RoleDoctor, nil)

	for i := 0; i < domain.MaxFailedLogins-1; i++ {
		if err := repo.UpdateLoginAttempt(ctx, u.ID, false); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	got, _ := repo.GetByID(ctx, u.ID)
	if got.IsLocked() {
		t.Fatalf("locked too early")
	}

	if err := repo.UpdateLoginAttempt(ctx, u.ID, false); err != nil {
		t.Fatalf("final attempt: %v", err)
	}
	got, _ = repo.GetByID(ctx, u.ID)
	if !got.IsLocked() {
		t.Fatalf("expected account locked after %d failures", domain.MaxFailedLogins)
	}

	if err := repo.UpdateLoginAttempt(ctx, u.ID, true); err != nil {
		t.Fatalf("success: %v", err)
	}
	got, _ = repo.GetByID(ctx, u.ID)
	if got.IsLocked() || got.LastLoginAt == nil {
		t.Fatalf("expected unlock and last login set")
	}
}

func TestDoctorPatientAssignment(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(db)
	doc := seedUser(t, db, "drwho", domain.RoleDoctor, nil)
	p1 := seedUser(t, db, "amy", domain.RolePatient, nil)
	p2 := seedUser(t, db, "rory", domain.RolePatient, nil)

	for _, p := range []*domain.User{p1, p2, p1} {
		if err := repo.AssignPatient(ctx, doc.ID, p.ID); err != nil {
			t.Fatalf("assign: %v", err)
		}
	}

	patients, err := repo.ListPatientsOf(ctx, doc.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(patients) != 2 || patients[0].Username != "amy" {
		t.Fatalf("unexpected patients: %d", len(patients))
	}

	if err := repo.UnassignPatient(ctx, doc.ID, p1.ID); err != nil {
		t.Fatalf("unassign: %v", err)
	}
	ok, err := repo.IsAssigned(ctx, doc.ID, p1.ID)
	if err != nil || ok {
		t.Fatalf("expected unassigned, ok=%v err=%v", ok, err)
	}
	ok, _ = repo.IsAssigned(ctx, doc.ID, p2.ID)
	if !ok {
		t.Fatalf("expected p2 still assigned")
	}
}

func TestUserListFilters(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(db)
	seedUser(t, db, "dr-adams", domain.RoleDoctor, nil)
	seedUser(t, db, "dr-baker", domain.RoleDoctor, nil)
	seedUser(t, db, "pat", domain.RolePatient, nil)

	role := domain.RoleDoctor
	page, err := repo.List(ctx, &domain.ListUsersQuery{Role: &role, PageSize: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.TotalCount != 2 || page.TotalPages != 2 || len(page.Users) != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}

	page, err = repo.List(ctx, &domain.ListUsersQuery{Search: "BAKER"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.TotalCount != 1 || page.Users[0].Username != "dr-baker" {
		t.Fatalf("unexpected search result: %+v", page)
	}
}

func TestPackageInUseCount(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	pkg := seedPackage(t, db, "Gold")
	seedUser(t, db, "u1", domain.RolePatient, pkg)

	n, err := NewUserRepository(db).CountByPackage(ctx, pkg.ID)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 user on package, got %d err=%v", n, err)
	}
}
