package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/record"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/subscription"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/database"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "medvault.db") + "?_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedPackage(t *testing.T, db *gorm.DB, name string) *subscription.Package {
	t.Helper()
	p := &subscription.Package{Name: name, Price: 499, CanShare: true, CanDelete: true, MaxUploads: 5, MaxStorageMB: 20, MaxShares: 2}
	if err := NewPackageRepository(db).Create(context.Background(), p); err != nil {
		t.Fatalf("seed package: %v", err)
	}
	return p
}

func seedUser(t *testing.T, db *gorm.DB, username string, role domain.Role, pkg *subscription.Package) *domain.User {
	t.Helper()
	u := &domain.User{Username: username, Email: username + "@example.org", PasswordHash: "x", Role: role, IsActive: true}
	if pkg != nil {
		u.PackageID = &pkg.ID
	}
	if err := NewUserRepository(db).Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func seedRecord(t *testing.T, db *gorm.DB, patient, doctor *domain.User) *record.Record {
	t.Helper()
	rec := &record.Record{
		PatientID: patient.ID,
		DoctorID:  doctor.ID,
		FileKey:   "prescriptions/" + patient.ID.String() + "/" + uuid.NewString() + ".pdf",
		FileName:  "scan.pdf",
		SizeBytes: 1024,
	}
	err := NewRecordRepository(db).CreateGuarded(context.Background(), rec, func([]*record.Record) error { return nil })
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}
	return rec
}
