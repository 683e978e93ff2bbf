package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "presence/pkg/domain-errors"
)

func TestIssueAndValidate(t *testing.T) {
	svc := NewService("test-signing-key", "presence", time.Hour)

	signed, err := svc.Issue("kiosk-01")
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	claims, err := svc.Validate(signed)
	require.NoError(t, err)
	assert.Equal(t, "kiosk-01", claims.DeviceID)
	assert.Equal(t, "presence", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestIssueRequiresDeviceID(t *testing.T) {
	svc := NewService("test-signing-key", "presence", time.Hour)

	_, err := svc.Issue("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestValidateRejectsWrongKey(t *testing.T) {
	issuer := NewService("key-one", "presence", time.Hour)
	verifier := NewService("key-two", "presence", time.Hour)

	signed, err := issuer.Issue("kiosk-01")
	require.NoError(t, err)

	_, err = verifier.Validate(signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateRejectsExpired(t *testing.T) {
	svc := NewService("test-signing-key", "presence", -time.Minute)

	signed, err := svc.Issue("kiosk-01")
	require.NoError(t, err)

	_, err = svc.Validate(signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateRejectsGarbage(t *testing.T) {
	svc := NewService("test-signing-key", "presence", time.Hour)

	_, err := svc.Validate("not.a.token")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
