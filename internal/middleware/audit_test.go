package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/uni-enrollment-api/internal/models"
)

func TestAuditRecordsSuccessfulAdminAction(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	r := gin.New()
	r.POST("/enrollments/:id/approve",
		func(c *gin.Context) { c.Set(ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}) },
		Audit(zap.New(core), AuditActionEnrollmentApprove, "enrollment"),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)
	r.POST("/enrollments/:id/reject",
		Audit(zap.New(core), AuditActionEnrollmentReject, "enrollment"),
		func(c *gin.Context) { c.Status(http.StatusBadRequest) },
	)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/enrollments/e-1/approve", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/enrollments/e-1/reject", nil))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "audit", entries[0].LoggerName)
	assert.Equal(t, AuditActionEnrollmentApprove, fields["action"])
	assert.Equal(t, "e-1", fields["resource_id"])
	assert.Equal(t, "admin-1", fields["user_id"])
}
