package v1

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/config"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/auth"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func TestRequestIDPropagation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ctxRequestID)) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(headerRequestID); got != "abc-123" || w.Body.String() != "abc-123" {
		t.Fatalf("request id = %q / %q, want abc-123", got, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, strings.Repeat("a", 65))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if _, err := uuid.Parse(w.Header().Get(headerRequestID)); err != nil {
		t.Fatalf("oversized id should be replaced with a uuid, got %q", w.Header().Get(headerRequestID))
	}
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtManager := auth.NewJWTManager(config.JWTConfig{
		Secret:          "a-test-secret-that-is-long-enough-for-hs256",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		Issuer:          "medvault-test",
	})
	r := gin.New()
	r.GET("/doctor", Authenticate(jwtManager), RequireRole(domain.RoleDoctor), func(c *gin.Context) {
		c.String(http.StatusOK, principal(c).UserID.String())
	})

	call := func(role domain.Role) *httptest.ResponseRecorder {
		pair, err := jwtManager.GenerateTokenPair(&domain.Claims{UserID: uuid.New(), Username: "u", Role: role})
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/doctor", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := call(domain.RoleDoctor); w.Code != http.StatusOK {
		t.Fatalf("doctor: status %d", w.Code)
	}
	if w := call(domain.RolePatient); w.Code != http.StatusForbidden {
		t.Fatalf("patient: status %d, want 403", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/doctor", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), "TOKEN_INVALID") {
		t.Fatalf("garbage token: status %d body %s", w.Code, w.Body.String())
	}
}

func TestTracingRecordsServerSpan(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	r := gin.New()
	r.Use(RequestID(), Tracing())
	r.GET("/records/:id", func(c *gin.Context) {
		if !trace.SpanContextFromContext(c.Request.Context()).IsValid() {
			t.Errorf("handler context carries no span")
		}
		c.Status(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/records/42", nil))

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	if spans[0].Name() != "GET /records/:id" {
		t.Fatalf("span name = %q", spans[0].Name())
	}
	if spans[0].SpanKind() != trace.SpanKindServer {
		t.Fatalf("span kind = %v", spans[0].SpanKind())
	}
	if spans[0].Status().Code.String() != "Error" {
		t.Fatalf("span status = %v, want Error", spans[0].Status().Code)
	}
}

func TestCORSDisabledWithoutOrigins(t *testing.T) {
	if CORS(config.CORSConfig{}) != nil {
		t.Fatalf("CORS middleware should be skipped when no origins are configured")
	}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(config.CORSConfig{AllowedOrigins: []string{"https://app.example.com"}, AllowedMethods: []string{"GET"}}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow origin = %q", got)
	}
}

func TestMetricsInFlightSurvivesPanic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.NewCollector("medvault-mw-test", prometheus.NewRegistry())
	r := gin.New()
	r.Use(Recovery(zap.NewNop()), Metrics(m))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("panic status = %d, want 500", w.Code)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))

	if got := testutil.ToFloat64(m.InFlightGauge); got != 0 {
		t.Fatalf("in-flight gauge = %v after requests finished, want 0", got)
	}
}
