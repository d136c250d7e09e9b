package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/record"
)

func TestSoftDeleteHidesRecord(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewRecordRepository(db)
	doc := seedUser(t, db, "doc", domain.RoleDoctor, nil)
	pat := seedUser(t, db, "pat", domain.RolePatient, nil)
	rec := seedRecord(t, db, pat, doc)
	seedRecord(t, db, pat, doc)

	if err := repo.SoftDelete(ctx, rec.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if err := repo.SoftDelete(ctx, rec.ID); !errors.Is(err, record.ErrRecordNotFound) {
		t.Fatalf("expected second delete to miss, got %v", err)
	}

	if _, err := repo.GetByID(ctx, rec.ID); !errors.Is(err, record.ErrRecordNotFound) {
		t.Fatalf("expected deleted record hidden, got %v", err)
	}
	got, err := repo.GetByIDIncludingDeleted(ctx, rec.ID)
	if err != nil || !got.IsDeleted {
		t.Fatalf("expected deleted row to remain, err=%v", err)
	}

	livePat, err := repo.ListLiveByPatient(ctx, pat.ID)
	if err != nil || len(livePat) != 1 {
		t.Fatalf("expected 1 live record, got %d err=%v", len(livePat), err)
	}
	page, err := repo.List(ctx, &record.ListRecordsQuery{DoctorID: &doc.ID})
	if err != nil || page.TotalCount != 1 {
		t.Fatalf("expected 1 listed record, got %+v err=%v", page, err)
	}

	n, err := repo.CountByUser(ctx, pat.ID)
	if err != nil || n != 2 {
		t.Fatalf("expected deleted rows counted for ownership, got %d err=%v", n, err)
	}
}

func TestCreateGuardedSeesLiveRecords(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewRecordRepository(db)
	doc := seedUser(t, db, "doc", domain.RoleDoctor, nil)
	pat := seedUser(t, db, "pat", domain.RolePatient, nil)
	first := seedRecord(t, db, pat, doc)
	seedRecord(t, db, pat, doc)

	capTwo := func(live []*record.Record) error {
		if len(live) >= 2 {
			return errors.New("cap reached")
		}
		return nil
	}

	third := &record.Record{PatientID: pat.ID, DoctorID: doc.ID, FileKey: "k3", FileName: "c.pdf", SizeBytes: 1}
	if err := repo.CreateGuarded(ctx, third, capTwo); err == nil {
		t.Fatalf("expected guard to reject third upload")
	}

	if err := repo.SoftDelete(ctx, first.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if err := repo.CreateGuarded(ctx, third, capTwo); err != nil {
		t.Fatalf("expected upload after delete, got %v", err)
	}
}

func TestAddShareGuarded(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewRecordRepository(db)
	doc := seedUser(t, db, "doc", domain.RoleDoctor, nil)
	other := seedUser(t, db, "other", domain.RoleDoctor, nil)
	third := seedUser(t, db, "third", domain.RoleDoctor, nil)
	pat := seedUser(t, db, "pat", domain.RolePatient, nil)
	rec := seedRecord(t, db, pat, doc)

	capOne := func(count int64) error {
		if count >= 1 {
			return errors.New("share cap")
		}
		return nil
	}

	added, err := repo.AddShareGuarded(ctx, rec.ID, other.ID, capOne)
	if err != nil || !added {
		t.Fatalf("expected share added, added=%v err=%v", added, err)
	}
	added, err = repo.AddShareGuarded(ctx, rec.ID, other.ID, capOne)
	if err != nil || added {
		t.Fatalf("expected idempotent re-share, added=%v err=%v", added, err)
	}
	if _, err := repo.AddShareGuarded(ctx, rec.ID, third.ID, capOne); err == nil {
		t.Fatalf("expected cap to reject a new recipient")
	}

	got, err := repo.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.IsSharedWith(other.ID) || got.IsSharedWith(third.ID) {
		t.Fatalf("unexpected shared_with: %v", got.SharedWithIDs())
	}
}

func TestListVisibleToIncludesShares(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewRecordRepository(db)
	author := seedUser(t, db, "author", domain.RoleDoctor, nil)
	colleague := seedUser(t, db, "colleague", domain.RoleDoctor, nil)
	pat := seedUser(t, db, "pat", domain.RolePatient, nil)

	shared := seedRecord(t, db, pat, author)
	seedRecord(t, db, pat, author)
	seedRecord(t, db, pat, colleague)

	if _, err := repo.AddShareGuarded(ctx, shared.ID, colleague.ID, func(int64) error { return nil }); err != nil {
		t.Fatalf("share: %v", err)
	}

	page, err := repo.List(ctx, &record.ListRecordsQuery{VisibleTo: &colleague.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.TotalCount != 2 {
		t.Fatalf("expected authored + shared records, got %d", page.TotalCount)
	}
}
