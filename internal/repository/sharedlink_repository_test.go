package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/sharedlink"
)

func TestSharedLinkOnePerRecord(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewSharedLinkRepository(db)
	doc := seedUser(t, db, "doc", domain.RoleDoctor, nil)
	pat := seedUser(t, db, "pat", domain.RolePatient, nil)
	rec := seedRecord(t, db, pat, doc)

	link := &sharedlink.SharedLink{Token: "tok-1", RecordID: rec.ID, ExpiresAt: time.Now().Add(time.Hour)}
	if err := repo.Create(ctx, link); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := &sharedlink.SharedLink{Token: "tok-2", RecordID: rec.ID, ExpiresAt: time.Now().Add(time.Hour)}
	if err := repo.Create(ctx, dup); !errors.Is(err, sharedlink.ErrLinkExists) {
		t.Fatalf("expected ErrLinkExists, got %v", err)
	}

	if ok, err := repo.Refresh(ctx, link.ID, "tok-1", "tok-3", time.Now().Add(2*time.Hour)); err != nil || !ok {
		t.Fatalf("refresh: ok=%v err=%v", ok, err)
	}
	if ok, _ := repo.Refresh(ctx, link.ID, "tok-1", "tok-4", time.Now().Add(2*time.Hour)); ok {
		t.Fatalf("refresh with a stale token must not apply")
	}
	got, err := repo.GetByToken(ctx, "tok-3")
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if got.ID != link.ID || got.Record.ID != rec.ID {
		t.Fatalf("expected same link identity with record loaded")
	}
	if _, err := repo.GetByToken(ctx, "tok-1"); !errors.Is(err, sharedlink.ErrLinkNotFound) {
		t.Fatalf("expected old token gone, got %v", err)
	}

	byRecord, err := repo.GetByRecordID(ctx, rec.ID)
	if err != nil || byRecord.Token != "tok-3" {
		t.Fatalf("unexpected link by record: %+v err=%v", byRecord, err)
	}
}

func TestSharedLinkLoadsDeletedRecord(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewSharedLinkRepository(db)
	doc := seedUser(t, db, "doc", domain.RoleDoctor, nil)
	pat := seedUser(t, db, "pat", domain.RolePatient, nil)
	rec := seedRecord(t, db, pat, doc)

	if err := repo.Create(ctx, &sharedlink.SharedLink{Token: "t", RecordID: rec.ID, ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := NewRecordRepository(db).SoftDelete(ctx, rec.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	got, err := repo.GetByToken(ctx, "t")
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if !got.Record.IsDeleted {
		t.Fatalf("expected deleted flag visible to resolver")
	}
}

func TestTokenRevocation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewTokenRevocationRepository(db)
	u := seedUser(t, db, "u", domain.RolePatient, nil)
	now := time.Now()

	if err := repo.Revoke(ctx, "jti-old", u.ID, now.Add(-time.Minute)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := repo.Revoke(ctx, "jti-new", u.ID, now.Add(time.Hour)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := repo.Revoke(ctx, "jti-new", u.ID, now.Add(time.Hour)); err != nil {
		t.Fatalf("repeat revoke should be a no-op: %v", err)
	}

	n, err := repo.PurgeExpired(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("expected one purged, got %d err=%v", n, err)
	}
	if ok, _ := repo.IsRevoked(ctx, "jti-new"); !ok {
		t.Fatalf("expected jti-new still revoked")
	}
	if ok, _ := repo.IsRevoked(ctx, "jti-old"); ok {
		t.Fatalf("expected jti-old purged")
	}
}
