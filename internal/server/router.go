package server

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-enrollment-api/internal/handler"
	"github.com/noah-isme/uni-enrollment-api/internal/middleware"
	"github.com/noah-isme/uni-enrollment-api/internal/models"
	"github.com/noah-isme/uni-enrollment-api/internal/service"
	"github.com/noah-isme/uni-enrollment-api/pkg/config"
	"github.com/noah-isme/uni-enrollment-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/uni-enrollment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/uni-enrollment-api/pkg/middleware/requestid"
)

// Handlers groups the HTTP handlers mounted by NewRouter.
type Handlers struct {
	Auth          *handler.AuthHandler
	Course        *handler.CourseHandler
	Enrollment    *handler.EnrollmentHandler
	Notification  *handler.NotificationHandler
	Metrics       *handler.MetricsHandler
	Authenticator middleware.TokenValidator
}

// NewRouter builds the gin engine with every API route.
func NewRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, h Handlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics, "/metrics"))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/register", h.Auth.Register)
	api.POST("/login", h.Auth.Login)

	secured := api.Group("")
	secured.Use(middleware.JWT(h.Authenticator))
	admin := middleware.RequireRoles(models.RoleAdmin)
	student := middleware.RequireRoles(models.RoleStudent)
	audit := func(action, resource string) gin.HandlerFunc { return middleware.Audit(logr, action, resource) }

	secured.POST("/logout", h.Auth.Logout)
	secured.GET("/me", h.Auth.Me)

	courses := secured.Group("/courses")
	courses.GET("", h.Course.List)
	courses.GET("/:id", h.Course.Get)
	courses.POST("", admin, audit(middleware.AuditActionCourseCreate, "course"), h.Course.Create)
	courses.PUT("/:id", admin, audit(middleware.AuditActionCourseUpdate, "course"), h.Course.Update)
	courses.DELETE("/:id", admin, audit(middleware.AuditActionCourseDelete, "course"), h.Course.Delete)

	enrollments := secured.Group("/enrollments")
	enrollments.GET("", admin, h.Enrollment.List)
	enrollments.GET("/export", admin, h.Enrollment.Export)
	enrollments.POST("", student, h.Enrollment.Create)
	enrollments.POST("/:id/approve", admin, audit(middleware.AuditActionEnrollmentApprove, "enrollment"), h.Enrollment.Approve)
	enrollments.POST("/:id/reject", admin, audit(middleware.AuditActionEnrollmentReject, "enrollment"), h.Enrollment.Reject)

	secured.GET("/my-enrollments", h.Enrollment.Mine)
	secured.GET("/users/:id/enrollments", admin, h.Enrollment.ListByUser)

	secured.GET("/notifications", h.Notification.List)
	secured.POST("/notifications/:id/read", h.Notification.MarkRead)

	secured.GET("/metrics/summary", admin, h.Metrics.Summary)

	return r
}
