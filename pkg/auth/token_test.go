package auth_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d4l-data4life/go-chat-gateway/pkg/auth"
)

var testSecret = []byte("unit-test-secret")

func TestIssueAndValidateToken(t *testing.T) {
	userID := uuid.New()

	signed, err := auth.IssueToken(userID, testSecret)
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	validator, err := auth.NewLocalJWTValidator(testSecret)
	require.NoError(t, err)

	parsed, err := validator.ValidateJWT(signed)
	require.NoError(t, err)

	subject, err := auth.SubjectUserID(*parsed)
	require.NoError(t, err)
	assert.Equal(t, userID, subject)
}

func TestValidateJWT_WrongKey(t *testing.T) {
	signed, err := auth.IssueToken(uuid.New(), testSecret)
	require.NoError(t, err)

	validator, err := auth.NewLocalJWTValidator([]byte("a-different-secret"))
	require.NoError(t, err)

	_, err = validator.ValidateJWT(signed)
	assert.ErrorIs(t, err, auth.ErrTokenValidation)
}

func TestValidateJWT_Expired(t *testing.T) {
	token := jwt.New()
	require.NoError(t, token.Set(jwt.SubjectKey, uuid.NewString()))
	require.NoError(t, token.Set(jwt.ExpirationKey, time.Now().Add(-time.Hour)))
	signed, err := jwt.Sign(token, jwa.HS256, testSecret)
	require.NoError(t, err)

	validator, err := auth.NewLocalJWTValidator(testSecret)
	require.NoError(t, err)

	_, err = validator.ValidateJWT(string(signed))
	assert.ErrorIs(t, err, auth.ErrTokenValidation)
}

func TestNewLocalJWTValidator_EmptyKey(t *testing.T) {
	_, err := auth.NewLocalJWTValidator(nil)
	assert.ErrorIs(t, err, auth.ErrInvalidJWTKey)

	_, err = auth.IssueToken(uuid.New(), nil)
	assert.ErrorIs(t, err, auth.ErrInvalidJWTKey)
}

func TestSubjectUserID_NonUUIDSubjectIsDeterministic(t *testing.T) {
	token := jwt.New()
	require.NoError(t, token.Set(jwt.SubjectKey, "user@example.com"))

	first, err := auth.SubjectUserID(token)
	require.NoError(t, err)
	second, err := auth.SubjectUserID(token)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, first)
	assert.Equal(t, first, second)
}

func TestSubjectUserID_MissingSubject(t *testing.T) {
	_, err := auth.SubjectUserID(jwt.New())
	assert.Error(t, err)
}
