package main

import (
	"context"
	"fmt"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/config"
	v1 "github.com/dmehra2102/prod-golang-projects/medvault/internal/handler/v1"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/repository"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/service"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/auth"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/blobstore"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/database"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/lock"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/metrics"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/notify"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/tracer"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app holds every long-lived dependency. Close releases them in reverse
// order of construction.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *gorm.DB
	metrics *metrics.Collector
	jwt     *auth.JWTManager
	redis   *redis.Client

	audit     *service.AuditService
	authSvc   *service.AuthService
	userSvc   *service.UserService
	pkgSvc    *service.PackageService
	recordSvc *service.RecordService
	linkSvc   *service.ShareLinkService
	remSvc    *service.ReminderService
	scanner   *service.ReminderScanner

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			err = multierr.Append(err, a.Close())
		}
	}()

	tp, err := tracer.Init(ctx, cfg.Tracing, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("initializing tracer: %w", err)
	}
	a.onClose(func() error { return tp.Shutdown(context.Background()) })

	a.db, err = database.Connect(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrapping sql.DB: %w", err)
	}
	a.onClose(sqlDB.Close)

	if err := database.Migrate(a.db, log); err != nil {
		return nil, err
	}

	a.metrics = metrics.NewCollector(cfg.App.Name, prometheus.DefaultRegisterer)
	a.jwt = auth.NewJWTManager(cfg.JWT)

	blobs, err := newBlobStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	notifier, err := a.newNotifier(cfg.Mail)
	if err != nil {
		return nil, err
	}

	locker := a.newLocker(cfg.Redis)

	users := repository.NewUserRepository(a.db)
	packages := repository.NewPackageRepository(a.db)
	records := repository.NewRecordRepository(a.db)
	links := repository.NewSharedLinkRepository(a.db)
	reminders := repository.NewReminderRepository(a.db)
	tokens := repository.NewTokenRevocationRepository(a.db)

	a.audit = service.NewAuditService(repository.NewAuditRepository(a.db), a.metrics, log)
	a.onClose(func() error { a.audit.Shutdown(); return nil })

	usage := service.NewUsageCalculator(records, blobs, log)
	totp := auth.NewTOTPManager(cfg.App.Name)

	a.authSvc = service.NewAuthService(users, packages, tokens, a.jwt, totp, usage, a.audit, log)
	a.userSvc = service.NewUserService(users, packages, records, usage, a.audit, log)
	a.pkgSvc = service.NewPackageService(packages, users, a.audit, log)
	a.recordSvc = service.NewRecordService(records, users, blobs, usage, a.metrics, a.audit, log, cfg.Storage.MaxUploadBytes)
	a.linkSvc = service.NewShareLinkService(links, records, users, blobs, a.metrics, a.audit, log, cfg.Share.LinkTTL)
	a.remSvc = service.NewReminderService(reminders, users, a.metrics, a.audit, log)
	a.scanner = service.NewReminderScanner(reminders, notifier, locker, a.metrics, log, service.ScannerOptions{
		BatchSize:  cfg.Reminder.BatchSize,
		ClaimLease: cfg.Reminder.ClaimLease,
		LockKey:    cfg.Reminder.LockKey,
		LockTTL:    cfg.Reminder.LockTTL,
		SubjectTag: cfg.Mail.SubjectTag,
	})

	return a, nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close runs every registered closer, newest first, and combines their errors.
func (a *app) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return multierr.Combine(errs...)
}

func (a *app) router() *gin.Engine {
	if a.cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	return v1.NewRouter(v1.RouterDeps{
		Log:       a.log,
		Metrics:   a.metrics,
		Gatherer:  prometheus.DefaultGatherer,
		JWT:       a.jwt,
		CORS:      a.cfg.CORS,
		RateLimit: a.cfg.RateLimit,
		Tracing:   a.cfg.Tracing.Enabled,
		Ready:     a.ready,

		Auth:      v1.NewAuthHandler(a.authSvc),
		Users:     v1.NewUserHandler(a.userSvc, a.recordSvc),
		Packages:  v1.NewPackageHandler(a.pkgSvc),
		Records:   v1.NewRecordHandler(a.recordSvc, a.linkSvc, a.cfg.Share.PublicBaseURL, a.cfg.Storage.MaxUploadBytes),
		Shares:    v1.NewShareHandler(a.linkSvc),
		Reminders: v1.NewReminderHandler(a.remSvc),
	})
}

func (a *app) ready(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func newBlobStore(ctx context.Context, cfg config.StorageConfig) (blobstore.Store, error) {
	switch cfg.Backend {
	case "s3":
		return blobstore.NewS3Store(ctx, blobstore.S3Options{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
			Prefix:   cfg.S3Prefix,
		})
	default:
		return blobstore.NewLocalStore(cfg.LocalRoot)
	}
}

func (a *app) newNotifier(cfg config.MailConfig) (notify.Notifier, error) {
	var transport notify.Notifier
	switch cfg.Transport {
	case "smtp":
		transport = notify.NewSMTPNotifier(notify.SMTPOptions{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.From,
		})
	case "kafka":
		kn := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.From)
		a.onClose(kn.Close)
		transport = kn
	case "log", "":
		return notify.NewLogNotifier(a.log), nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.Transport)
	}
	return notify.NewBreakerNotifier(transport, notify.BreakerOptions{
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
	}, a.log), nil
}

// newLocker uses Redis when configured so several replicas share one
// scanner lock. A single instance falls back to an in-process lock.
func (a *app) newLocker(cfg config.RedisConfig) lock.Locker {
	if cfg.Addr == "" {
		return lock.NewLocalLocker()
	}
	a.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	a.onClose(a.redis.Close)
	return lock.NewRedisLocker(a.redis)
}
