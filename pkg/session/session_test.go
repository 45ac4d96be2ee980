package session

import (
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
)

func TestSigner_RoundTrip(t *testing.T) {
	s, err := NewSigner("test-secret", time.Hour)
	assert.NoError(t, err)

	token, exp, err := s.GenerateToken("org-1", "organization")
	assert.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	claims, err := s.ValidateToken(token)
	assert.NoError(t, err)
	assert.Equal(t, "org-1", claims.Subject)
	assert.Equal(t, "organization", claims.Role)
}

func TestSigner_RejectsForeignSecret(t *testing.T) {
	a, _ := NewSigner("secret-a", time.Hour)
	b, _ := NewSigner("secret-b", time.Hour)
	token, _, err := a.GenerateToken("admin-1", "admin")
	assert.NoError(t, err)

	_, err = b.ValidateToken(token)
	assert.Error(t, err)
}

func TestSigner_Expired(t *testing.T) {
	s, _ := NewSigner("test-secret", time.Minute)
	s.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	token, _, err := s.GenerateToken("org-1", "organization")
	assert.NoError(t, err)

	s.now = time.Now
	_, err = s.ValidateToken(token)
	assert.IsError(t, err, ErrSessionTokenInvalid)
}

func TestNewSigner_EmptySecret(t *testing.T) {
	_, err := NewSigner("", 0)
	assert.Error(t, err)
}

func TestGenerateToken_RequiresSubjectAndRole(t *testing.T) {
	s, _ := NewSigner("test-secret", 0)
	_, _, err := s.GenerateToken("", "admin")
	assert.Error(t, err)
	_, _, err = s.GenerateToken("admin-1", "")
	assert.Error(t, err)
}
