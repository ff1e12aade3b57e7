package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of tokens minted by IssueToken when no ttl is given.
const DefaultTokenTTL = 24 * time.Hour

// Config holds what the gate needs to decide on a request.
type Config struct {
	// AppName must match the `name` claim of every presented token.
	AppName string
	// SigningSecret is the HS256 key used to verify tokens.
	SigningSecret string
	// SharedSecret is the static credential the raw token must equal.
	SharedSecret string
	Now          func() time.Time
}

// Claims carried by tokens accepted by the gate.
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Credential is the result of a successful authorization.
type Credential struct {
	Token  string
	Claims Claims
}

// Kind classifies gate failures.
type Kind int

const (
	KindUnauthorized Kind = iota + 1
	KindInvalidToken
	KindTokenExpired
	KindInvalidCredential
	KindMisconfigured
)

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindInvalidCredential:
		return http.StatusForbidden
	case KindMisconfigured:
		return http.StatusInternalServerError
	default:
		return http.StatusUnauthorized
	}
}

// Message returns the client facing message for the kind.
func (k Kind) Message() string {
	switch k {
	case KindInvalidToken:
		return "Invalid or expired token"
	case KindTokenExpired:
		return "Token expired"
	case KindInvalidCredential:
		return "Invalid credential"
	case KindMisconfigured:
		return "Server configuration error"
	default:
		return "Unauthorized"
	}
}

// Error is returned by Gate.Authorize. Err holds the underlying cause, if any,
// and is meant for logs only.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind.Message(), e.Err)
	}
	return e.Kind.Message()
}

func (e *Error) Unwrap() error { return e.Err }

func fail(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}

// Gate checks bearer credentials.
type Gate struct {
	cfg Config
}

func NewGate(cfg Config) Gate {
	return Gate{cfg: cfg}
}

func (g Gate) now() time.Time {
	if g.cfg.Now != nil {
		return g.cfg.Now()
	}
	return time.Now()
}

// Authorize runs every check against the raw Authorization header value, in
// order: presence, signature, expiry, application name, shared secret.
func (g Gate) Authorize(header string) (Credential, error) {
	if strings.TrimSpace(header) == "" {
		return Credential{}, fail(KindUnauthorized, errors.New("missing authorization header"))
	}
	token := BearerToken(header)

	claims := Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(g.now),
	)
	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		if g.cfg.SigningSecret == "" {
			return nil, errors.New("signing secret not configured")
		}
		return []byte(g.cfg.SigningSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Credential{}, fail(KindTokenExpired, err)
		}
		return Credential{}, fail(KindInvalidToken, err)
	}
	if token == "" {
		return Credential{}, fail(KindUnauthorized, errors.New("empty token"))
	}
	if expired(claims.ExpiresAt, g.now()) {
		return Credential{}, fail(KindTokenExpired, nil)
	}
	if claims.Name != g.cfg.AppName {
		return Credential{}, fail(KindUnauthorized, fmt.Errorf("unexpected name claim %q", claims.Name))
	}
	if g.cfg.SharedSecret == "" {
		return Credential{}, fail(KindMisconfigured, errors.New("shared secret not configured"))
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(g.cfg.SharedSecret)) != 1 {
		return Credential{}, fail(KindInvalidCredential, nil)
	}
	return Credential{Token: token, Claims: claims}, nil
}

// expired reports whether exp has been reached; a token is dead at exp itself.
func expired(exp *jwt.NumericDate, now time.Time) bool {
	return exp != nil && !now.Before(exp.Time)
}

// BearerToken returns the first whitespace separated value after the scheme,
// or "" when there is none.
func BearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// IssueToken mints an HS256 token carrying name, valid for ttl from now.
func IssueToken(secret, name string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("signing secret required")
	}
	if name == "" {
		return "", errors.New("name required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if now.IsZero() {
		now = time.Now()
	}
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
