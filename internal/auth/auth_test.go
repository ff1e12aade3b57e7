package auth

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret  = "signing-secret"
	testAppName = "LuT-1"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestGate(t *testing.T) (Gate, string) {
	t.Helper()
	token, err := IssueToken(testSecret, testAppName, time.Hour, testNow)
	require.NoError(t, err)
	return NewGate(Config{
		AppName:       testAppName,
		SigningSecret: testSecret,
		SharedSecret:  token,
		Now:           func() time.Time { return testNow },
	}), token
}

func kindOf(t *testing.T, err error) Kind {
	t.Helper()
	var ae *Error
	require.True(t, errors.As(err, &ae), "expected *auth.Error, got %v", err)
	return ae.Kind
}

func TestAuthorizeAccepts(t *testing.T) {
	g, token := newTestGate(t)
	cred, err := g.Authorize("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, token, cred.Token)
	assert.Equal(t, testAppName, cred.Claims.Name)
}

func TestAuthorizeMissingHeader(t *testing.T) {
	g, _ := newTestGate(t)
	_, err := g.Authorize("")
	assert.Equal(t, KindUnauthorized, kindOf(t, err))
	assert.Equal(t, http.StatusUnauthorized, KindUnauthorized.Status())
}

func TestAuthorizeMalformed(t *testing.T) {
	g, _ := newTestGate(t)
	for _, header := range []string{"Bearer", "Bearer not-a-jwt", "Bearer a.b.c"} {
		_, err := g.Authorize(header)
		assert.Equal(t, KindInvalidToken, kindOf(t, err), header)
	}
}

func TestAuthorizeWrongSignature(t *testing.T) {
	g, _ := newTestGate(t)
	other, err := IssueToken("another-secret", testAppName, time.Hour, testNow)
	require.NoError(t, err)
	_, err = g.Authorize("Bearer " + other)
	assert.Equal(t, KindInvalidToken, kindOf(t, err))
}

func TestAuthorizeRejectsOtherAlgorithms(t *testing.T) {
	g, _ := newTestGate(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{Name: testAppName}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = g.Authorize("Bearer " + token)
	assert.Equal(t, KindInvalidToken, kindOf(t, err))
}

func TestAuthorizeExpiredBeforeSharedSecret(t *testing.T) {
	expired, err := IssueToken(testSecret, testAppName, time.Minute, testNow.Add(-time.Hour))
	require.NoError(t, err)
	g := NewGate(Config{
		AppName:       testAppName,
		SigningSecret: testSecret,
		SharedSecret:  expired,
		Now:           func() time.Time { return testNow },
	})
	_, err = g.Authorize("Bearer " + expired)
	assert.Equal(t, KindTokenExpired, kindOf(t, err))
	assert.Equal(t, http.StatusUnauthorized, KindTokenExpired.Status())
}

func TestAuthorizeExpiresAtBoundary(t *testing.T) {
	token, err := IssueToken(testSecret, testAppName, time.Hour, testNow.Add(-time.Hour))
	require.NoError(t, err)
	g := NewGate(Config{
		AppName:       testAppName,
		SigningSecret: testSecret,
		SharedSecret:  token,
		Now:           func() time.Time { return testNow },
	})
	_, err = g.Authorize("Bearer " + token)
	assert.Equal(t, KindTokenExpired, kindOf(t, err))
}

func TestExpired(t *testing.T) {
	exp := jwt.NewNumericDate(testNow)
	assert.False(t, expired(nil, testNow))
	assert.False(t, expired(exp, testNow.Add(-time.Second)))
	assert.True(t, expired(exp, testNow))
	assert.True(t, expired(exp, testNow.Add(time.Second)))
}

func TestAuthorizeNameMismatch(t *testing.T) {
	g, _ := newTestGate(t)
	token, err := IssueToken(testSecret, "someone-else", time.Hour, testNow)
	require.NoError(t, err)
	_, err = g.Authorize("Bearer " + token)
	assert.Equal(t, KindUnauthorized, kindOf(t, err))
}

func TestAuthorizeSharedSecretMismatch(t *testing.T) {
	g, _ := newTestGate(t)
	valid, err := IssueToken(testSecret, testAppName, 2*time.Hour, testNow)
	require.NoError(t, err)
	_, err = g.Authorize("Bearer " + valid)
	assert.Equal(t, KindInvalidCredential, kindOf(t, err))
	assert.Equal(t, http.StatusForbidden, KindInvalidCredential.Status())
	assert.Equal(t, "Invalid credential", KindInvalidCredential.Message())
}

func TestAuthorizeMissingSharedSecret(t *testing.T) {
	token, err := IssueToken(testSecret, testAppName, time.Hour, testNow)
	require.NoError(t, err)
	g := NewGate(Config{AppName: testAppName, SigningSecret: testSecret, Now: func() time.Time { return testNow }})
	_, err = g.Authorize("Bearer " + token)
	assert.Equal(t, KindMisconfigured, kindOf(t, err))
	assert.Equal(t, http.StatusInternalServerError, KindMisconfigured.Status())
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("  Bearer   abc  extra"))
	assert.Equal(t, "", BearerToken("Bearer"))
}

func TestIssueTokenDefaults(t *testing.T) {
	token, err := IssueToken(testSecret, testAppName, 0, testNow)
	require.NoError(t, err)
	claims := Claims{}
	_, err = jwt.NewParser(jwt.WithTimeFunc(func() time.Time { return testNow })).ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	assert.True(t, testNow.Add(DefaultTokenTTL).Equal(claims.ExpiresAt.Time))

	_, err = IssueToken("", testAppName, 0, testNow)
	assert.Error(t, err)
}
