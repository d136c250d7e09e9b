package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/config"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/subscription"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/repository"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/service"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/auth"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/blobstore"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/database"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

type apiEnv struct {
	router *gin.Engine
	pkgs   *repository.PackageRepository
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := filepath.Join(t.TempDir(), "api.db") + "?_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	log := zap.NewNop()
	if err := database.Migrate(db, log); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	blobs, err := blobstore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewCollector("medvault-api-test", reg)
	jwtManager := auth.NewJWTManager(config.JWTConfig{
		Secret:          "a-test-secret-that-is-long-enough-for-hs256",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		Issuer:          "medvault-test",
	})

	users := repository.NewUserRepository(db)
	pkgs := repository.NewPackageRepository(db)
	records := repository.NewRecordRepository(db)
	links := repository.NewSharedLinkRepository(db)
	rems := repository.NewReminderRepository(db)

	auditSvc := service.NewAuditService(repository.NewAuditRepository(db), m, log)
	t.Cleanup(auditSvc.Shutdown)
	usage := service.NewUsageCalculator(records, blobs, log)

	authSvc := service.NewAuthService(users, pkgs, repository.NewTokenRevocationRepository(db), jwtManager, auth.NewTOTPManager("MedVault"), usage, auditSvc, log)
	userSvc := service.NewUserService(users, pkgs, records, usage, auditSvc, log)
	pkgSvc := service.NewPackageService(pkgs, users, auditSvc, log)
	recordSvc := service.NewRecordService(records, users, blobs, usage, m, auditSvc, log, 10<<20)
	linkSvc := service.NewShareLinkService(links, records, users, blobs, m, auditSvc, log, 24*time.Hour)
	remSvc := service.NewReminderService(rems, users, m, auditSvc, log)

	router := NewRouter(RouterDeps{
		Log:       log,
		Metrics:   m,
		Gatherer:  reg,
		JWT:       jwtManager,
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 1000, AuthRequestsPerMinute: 1000},
		Ready:     func(ctx context.Context) error { return sqlDB.PingContext(ctx) },
		Auth:      NewAuthHandler(authSvc),
		Users:     NewUserHandler(userSvc, recordSvc),
		Packages:  NewPackageHandler(pkgSvc),
		Records:   NewRecordHandler(recordSvc, linkSvc, "https://vault.example.org", 10<<20),
		Shares:    NewShareHandler(linkSvc),
		Reminders: NewReminderHandler(remSvc),
	})

	return &apiEnv{router: router, pkgs: pkgs}
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *apiEnv) upload(t *testing.T, token string, fields map[string]string, name string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write(content)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/records", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type authEnvelope struct {
	Data struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		Tokens struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"tokens"`
		PackageInfo map[string]any `json:"package_info"`
	} `json:"data"`
}

func (e *apiEnv) register(t *testing.T, username, role, packageID string) authEnvelope {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username":   username,
		"email":      username + "@example.org",
		"password":   "correct-horse-battery",
		"role":       role,
		"package_id": packageID,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", username, w.Code, w.Body.String())
	}
	var env authEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode register: %v", err)
	}
	return env
}

func (e *apiEnv) seedPackage(t *testing.T, mutate func(*subscription.Package)) *subscription.Package {
	t.Helper()
	p := &subscription.Package{Name: "Gold", Price: 999, CanShare: true, CanSetReminders: true, CanDelete: true, MaxUploads: 10, MaxStorageMB: 50, MaxShares: 3}
	if mutate != nil {
		mutate(p)
	}
	if err := e.pkgs.Create(context.Background(), p); err != nil {
		t.Fatalf("seed package: %v", err)
	}
	return p
}

func TestHealthAndMetrics(t *testing.T) {
	env := newAPIEnv(t)

	if w := env.do(t, http.MethodGet, "/healthz", "", nil); w.Code != http.StatusOK {
		t.Fatalf("healthz: %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/readyz", "", nil); w.Code != http.StatusOK {
		t.Fatalf("readyz: %d %s", w.Code, w.Body.String())
	}
	w := env.do(t, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "medvault_api_test_http_requests_total") {
		t.Fatalf("metrics missing request counter: %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" || w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected request id and security headers")
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newAPIEnv(t)

	if w := env.do(t, http.MethodGet, "/api/v1/me", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/me", "garbage", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", w.Code)
	}

	doc := env.register(t, "doc", "doctor", "")
	if w := env.do(t, http.MethodGet, "/api/v1/admin/users", doc.Data.Tokens.AccessToken, nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for doctor on admin route, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/records/not-a-uuid", doc.Data.Tokens.AccessToken, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", w.Code)
	}
}

func TestRegisterAndLoginNeverExposeSecrets(t *testing.T) {
	env := newAPIEnv(t)
	pkg := env.seedPackage(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "pat", "email": "pat@example.org", "password": "correct-horse-battery", "role": "patient",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("patient without package should be rejected, got %d", w.Code)
	}

	env.register(t, "pat", "patient", pkg.ID.String())

	w = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "pat", "password": "correct-horse-battery",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if strings.Contains(body, "password") || strings.Contains(body, "PasswordHash") || strings.Contains(body, "mfa_secret") {
		t.Fatalf("login response leaks credentials: %s", body)
	}
	var env2 authEnvelope
	_ = json.Unmarshal(w.Body.Bytes(), &env2)
	if env2.Data.PackageInfo["available_uploads"] != float64(10) {
		t.Fatalf("unexpected package info %v", env2.Data.PackageInfo)
	}

	w = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "pat", "password": "wrong-password!!",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", w.Code)
	}
}

func TestUploadShareLinkAndPublicDownload(t *testing.T) {
	env := newAPIEnv(t)
	pkg := env.seedPackage(t, func(p *subscription.Package) { p.MaxUploads = 1 })
	doc := env.register(t, "doc", "doctor", "")
	pat := env.register(t, "pat", "patient", pkg.ID.String())
	token := pat.Data.Tokens.AccessToken

	w := env.upload(t, token, map[string]string{"doctor_id": doc.Data.User.ID, "description": "bloods"}, "labs.pdf", pdfBytes)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	var created struct {
		Data RecordResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode upload: %v", err)
	}

	w = env.upload(t, token, map[string]string{"doctor_id": doc.Data.User.ID}, "labs.pdf", pdfBytes)
	if w.Code != http.StatusConflict || !strings.Contains(w.Body.String(), "QUOTA_EXCEEDED") {
		t.Fatalf("expected quota exceeded, got %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodPost, "/api/v1/records/"+created.Data.ID.String()+"/share-link", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("share link: %d %s", w.Code, w.Body.String())
	}
	var link struct {
		Data ShareLinkResponse `json:"data"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &link)
	if !strings.HasPrefix(link.Data.Link, "https://vault.example.org/api/v1/share/") {
		t.Fatalf("unexpected link %q", link.Data.Link)
	}

	w = env.do(t, http.MethodGet, "/api/v1/share/"+link.Data.Token, "", nil)
	if w.Code != http.StatusOK || !bytes.Equal(w.Body.Bytes(), pdfBytes) {
		t.Fatalf("public download: %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "labs.pdf") {
		t.Fatalf("unexpected content disposition %q", cd)
	}

	if created.Data.IsDeleted {
		t.Fatalf("fresh upload reported as deleted")
	}

	w = env.do(t, http.MethodGet, "/api/v1/share/"+link.Data.Token+"/info", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("share info: %d %s", w.Code, w.Body.String())
	}
	var info struct {
		Data struct {
			Token     string                     `json:"token"`
			ExpiresAt string                     `json:"expires_at"`
			Record    map[string]json.RawMessage `json:"record"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.Data.Token != link.Data.Token || info.Data.ExpiresAt == "" {
		t.Fatalf("unexpected link fields %+v", info.Data)
	}
	for _, key := range []string{"id", "patient_id", "doctor_id", "description", "upload_date", "is_deleted", "shared_with"} {
		if _, ok := info.Data.Record[key]; !ok {
			t.Fatalf("record payload missing %q: %s", key, w.Body.String())
		}
	}
	if string(info.Data.Record["id"]) != `"`+created.Data.ID.String()+`"` ||
		string(info.Data.Record["is_deleted"]) != "false" ||
		string(info.Data.Record["shared_with"]) != "[]" {
		t.Fatalf("unexpected record payload %s", w.Body.String())
	}

	if w := env.do(t, http.MethodGet, "/api/v1/share/unknown-token", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown token, got %d", w.Code)
	}
}

func TestUploadRejectsNonDoctorTarget(t *testing.T) {
	env := newAPIEnv(t)
	pkg := env.seedPackage(t, nil)
	pat := env.register(t, "pat", "patient", pkg.ID.String())

	w := env.upload(t, pat.Data.Tokens.AccessToken, map[string]string{"doctor_id": "nope"}, "labs.pdf", pdfBytes)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed doctor_id, got %d", w.Code)
	}
	w = env.upload(t, pat.Data.Tokens.AccessToken, map[string]string{"doctor_id": pat.Data.User.ID}, "labs.pdf", pdfBytes)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when doctor_id is not a doctor, got %d %s", w.Code, w.Body.String())
	}
}

func TestRateLimitRejectsBursts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(config.RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
}
