package service

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/config"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/subscription"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/repository"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/auth"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/blobstore"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/database"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testMaxUpload = 10 << 20

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

type testEnv struct {
	db      *gorm.DB
	users   *repository.UserRepository
	pkgs    *repository.PackageRepository
	records *repository.RecordRepository
	links   *repository.SharedLinkRepository
	rems    *repository.ReminderRepository
	tokens  *repository.TokenRevocationRepository
	blobs   *blobstore.LocalStore
	metrics *metrics.Collector
	audit   *AuditService
	usage   *UsageCalculator
	jwt     *auth.JWTManager
	totp    *auth.TOTPManager
}

func newTestEnv(t *testing.T) *testEnv {
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

	blobs, err := blobstore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}

	env := &testEnv{
		db:      db,
		users:   repository.NewUserRepository(db),
		pkgs:    repository.NewPackageRepository(db),
		records: repository.NewRecordRepository(db),
		links:   repository.NewSharedLinkRepository(db),
		rems:    repository.NewReminderRepository(db),
		tokens:  repository.NewTokenRevocationRepository(db),
		blobs:   blobs,
		metrics: metrics.NewCollector("medvault-test", prometheus.NewRegistry()),
		jwt: auth.NewJWTManager(config.JWTConfig{
			Secret:          "a-test-secret-that-is-long-enough-for-hs256",
			AccessTokenTTL:  time.Minute,
			RefreshTokenTTL: time.Hour,
			Issuer:          "medvault-test",
		}),
		totp: auth.NewTOTPManager("MedVault"),
	}
	env.audit = NewAuditService(repository.NewAuditRepository(db), env.metrics, zap.NewNop())
	t.Cleanup(env.audit.Shutdown)
	env.usage = NewUsageCalculator(env.records, blobs, zap.NewNop())
	return env
}

func (e *testEnv) recordService() *RecordService {
	return NewRecordService(e.records, e.users, e.blobs, e.usage, e.metrics, e.audit, zap.NewNop(), testMaxUpload)
}

func (e *testEnv) authService() *AuthService {
	return NewAuthService(e.users, e.pkgs, e.tokens, e.jwt, e.totp, e.usage, e.audit, zap.NewNop())
}

func (e *testEnv) seedPackage(t *testing.T, mutate func(*subscription.Package)) *subscription.Package {
	t.Helper()
	p := &subscription.Package{
		Name:            "pkg-" + uuid.NewString()[:8],
		Price:           499,
		CanShare:        true,
		CanSetReminders: true,
		CanDelete:       true,
		MaxUploads:      5,
		MaxStorageMB:    20,
		MaxShares:       2,
	}
	if mutate != nil {
		mutate(p)
	}
	if err := e.pkgs.Create(context.Background(), p); err != nil {
		t.Fatalf("seed package: %v", err)
	}
	return p
}

func (e *testEnv) seedUser(t *testing.T, username string, role domain.Role, pkg *subscription.Package) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse-battery"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &domain.User{
		Username:     username,
		Email:        username + "@example.org",
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
	}
	if pkg != nil {
		u.PackageID = &pkg.ID
	}
	if err := e.users.Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func as(u *domain.User) Principal {
	return Principal{UserID: u.ID, Role: u.Role, IP: "203.0.113.7", RequestID: "test"}
}

func pdfUpload(name string) *UploadCommand {
	return &UploadCommand{
		FileName: name,
		Size:     int64(len(pdfBytes)),
		Content:  bytes.NewReader(pdfBytes),
	}
}
