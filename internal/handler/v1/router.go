package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/config"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/auth"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Log       *zap.Logger
	Metrics   *metrics.Collector
	Gatherer  prometheus.Gatherer
	JWT       *auth.JWTManager
	CORS      config.CORSConfig
	RateLimit config.RateLimitConfig
	Tracing   bool
	// Ready reports whether backing stores are reachable.
	Ready func(ctx context.Context) error

	Auth      *AuthHandler
	Users     *UserHandler
	Packages  *PackageHandler
	Records   *RecordHandler
	Shares    *ShareHandler
	Reminders *ReminderHandler
}

func use(r gin.IRoutes, handlers ...gin.HandlerFunc) {
	for _, h := range handlers {
		if h != nil {
			r.Use(h)
		}
	}
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	use(r,
		Recovery(d.Log),
		RequestID(),
		SecurityHeaders(),
		CORS(d.CORS),
	)
	if d.Tracing {
		r.Use(Tracing())
	}
	r.Use(AccessLog(d.Log))
	if d.Metrics != nil {
		r.Use(Metrics(d.Metrics))
	}
	use(r, RateLimit(d.RateLimit))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if d.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := d.Ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.MetricsHandler(d.Gatherer)))
	}

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	use(authGroup, AuthRateLimit(d.RateLimit))
	authGroup.POST("/register", d.Auth.Register)
	authGroup.POST("/login", d.Auth.Login)
	authGroup.POST("/refresh", d.Auth.Refresh)

	api.GET("/packages", d.Packages.List)
	api.GET("/packages/:id", d.Packages.Get)
	api.GET("/doctors", d.Users.ListDoctors)
	api.GET("/share/:token", d.Shares.Download)
	api.GET("/share/:token/info", d.Shares.Info)

	secured := api.Group("")
	secured.Use(Authenticate(d.JWT))

	secured.POST("/auth/logout", d.Auth.Logout)
	secured.POST("/auth/password", d.Auth.ChangePassword)
	secured.POST("/auth/mfa/enroll", d.Auth.BeginMFA)
	secured.POST("/auth/mfa/confirm", d.Auth.ConfirmMFA)

	secured.GET("/me", d.Users.Me)
	secured.PUT("/me", d.Users.UpdateMe)
	secured.GET("/me/package", d.Users.MyPackage)

	doctors := secured.Group("/patients")
	doctors.Use(RequireRole(domain.RoleDoctor))
	doctors.GET("", d.Users.ListMyPatients)
	doctors.GET("/all", d.Users.ListAllPatients)
	doctors.POST("", d.Users.CreatePatient)
	doctors.PUT("/:id", d.Users.UpdatePatient)
	doctors.POST("/:id/assign", d.Users.AssignPatient)
	doctors.DELETE("/:id/assign", d.Users.UnassignPatient)
	doctors.GET("/:id/records", d.Users.PatientRecords)

	secured.GET("/records", d.Records.List)
	secured.POST("/records", RequireRole(domain.RoleDoctor, domain.RolePatient), d.Records.Upload)
	secured.GET("/records/:id", d.Records.Get)
	secured.GET("/records/:id/download", d.Records.Download)
	secured.POST("/records/:id/share", d.Records.Share)
	secured.POST("/records/:id/share-link", d.Records.CreateShareLink)
	secured.DELETE("/records/:id", d.Records.Delete)

	secured.GET("/reminders", d.Reminders.List)
	secured.POST("/reminders", d.Reminders.Create)
	secured.GET("/reminders/:id", d.Reminders.Get)

	admin := secured.Group("/admin")
	admin.Use(RequireRole(domain.RoleAdmin))
	admin.GET("/users", d.Users.ListUsers)
	admin.POST("/users", d.Users.CreateUser)
	admin.GET("/users/:id", d.Users.GetUser)
	admin.PUT("/users/:id", d.Users.UpdateUser)
	admin.DELETE("/users/:id", d.Users.DeleteUser)
	admin.POST("/packages", d.Packages.Create)
	admin.PUT("/packages/:id", d.Packages.Update)
	admin.DELETE("/packages/:id", d.Packages.Delete)

	r.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "route not found")
	})

	return r
}
