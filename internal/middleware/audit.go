package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	reqidmiddleware "github.com/noah-isme/uni-enrollment-api/pkg/middleware/requestid"
)

// Audit actions recorded for admin mutations.
const (
	AuditActionCourseCreate      = "COURSE_CREATE"
	AuditActionCourseUpdate      = "COURSE_UPDATE"
	AuditActionCourseDelete      = "COURSE_DELETE"
	AuditActionEnrollmentApprove = "ENROLLMENT_APPROVE"
	AuditActionEnrollmentReject  = "ENROLLMENT_REJECT"
)

// Audit writes an audit entry after every successful request on the route.
func Audit(logger *zap.Logger, action, resource string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	audit := logger.Named("audit")

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		fields := []zap.Field{
			zap.String("action", action),
			zap.String("resource", resource),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("request_id", reqidmiddleware.Value(c)),
		}
		if id := c.Param("id"); id != "" {
			fields = append(fields, zap.String("resource_id", id))
		}
		if claims, ok := Claims(c); ok {
			fields = append(fields, zap.String("user_id", claims.UserID), zap.String("role", string(claims.Role)))
		}
		audit.Info("admin action", fields...)
	}
}
