package util

import (
	"testing"
	"time"

	"toeic_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret-unit-test-secret"

func TestGenerateAndParseJWT(t *testing.T) {
	token, err := GenerateJWT(42, model.KindMember, model.RoleMember, "a@b.c", testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.AccountID)
	assert.Equal(t, model.KindMember, claims.Kind)
	assert.Equal(t, model.RoleMember, claims.Role)
	assert.True(t, claims.IsMember())
}

func TestParseJWTRejectsWrongSecret(t *testing.T) {
	token, err := GenerateJWT(1, model.KindEmployee, model.RoleAdmin, "x@y.z", testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ParseJWT(token, "another-secret")
	assert.Error(t, err)
}

func TestParseJWTRejectsExpired(t *testing.T) {
	token, err := GenerateJWT(1, model.KindEmployee, model.RoleStaff, "x@y.z", testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseJWT(token, testSecret)
	assert.Error(t, err)
}
