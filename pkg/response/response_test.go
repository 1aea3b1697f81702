package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/uni-enrollment-api/pkg/errors"
)

func TestErrorDoesNotLeakInternalCause(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, errors.New("pq: relation \"enrollments\" does not exist"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "relation")
	assert.Len(t, c.Errors, 1)

	var body Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, appErrors.ErrInternal.Message, body.Message)
	assert.Equal(t, appErrors.ErrInternal.Code, body.Error.Code)
}

func TestErrorBusinessRule(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, appErrors.Clone(appErrors.ErrQuotaExceeded, "Max 3 courses allowed"))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, c.Errors)
	assert.Contains(t, w.Body.String(), "Max 3 courses allowed")
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestCreatedCarriesMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Created(c, "Registration successful", gin.H{"id": "u1"})

	require.Equal(t, http.StatusCreated, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Registration successful", body["message"])
	assert.NotNil(t, body["data"])
}
