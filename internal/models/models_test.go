package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	role, err := ParseRole("admin")
	assert.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)

	_, err = ParseRole("ADMIN")
	assert.Error(t, err)
	_, err = ParseRole("superadmin")
	assert.Error(t, err)

	assert.True(t, RoleStudent.Valid())
	assert.False(t, Role("").Valid())
}

func TestEnrollmentStatus(t *testing.T) {
	assert.True(t, EnrollmentStatusPending.Valid())
	assert.False(t, EnrollmentStatus("cancelled").Valid())

	assert.False(t, EnrollmentStatusPending.Terminal())
	assert.True(t, EnrollmentStatusApproved.Terminal())
	assert.True(t, EnrollmentStatusRejected.Terminal())
}

func TestActorFromClaims(t *testing.T) {
	claims := &JWTClaims{UserID: "u-1", Role: RoleStudent}
	actor := claims.Actor()
	assert.Equal(t, "u-1", actor.ID)
	assert.True(t, actor.IsStudent())
	assert.False(t, actor.IsAdmin())
}
