// Package identity verifies access tokens issued by the identity provider and
// tracks the authenticated session of a client.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/freestylevancouver/volunteer-portal/pkg/db"
)

// Identity is the authenticated caller of an operation
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role,omitempty"`
	Admin  bool   `json:"admin"`
}

// Claims are the access token claims the portal relies on
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 access tokens. Admin privilege is derived from the
// role claim and nothing else.
type Verifier struct {
	secret    []byte
	adminRole string
	now       func() time.Time
}

// NewVerifier creates a verifier for tokens signed with secret
func NewVerifier(secret, adminRole string) *Verifier {
	return &Verifier{secret: []byte(secret), adminRole: adminRole, now: time.Now}
}

// Verify parses and validates a token, returning db.ErrUnauthenticated
// wrapped with the reason when it is not acceptable
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", db.ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", db.ErrUnauthenticated)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", db.ErrUnauthenticated)
	}

	return &Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   claims.Role,
		Admin:  v.adminRole != "" && claims.Role == v.adminRole,
	}, nil
}

// Issue signs an access token. Used by development tooling and tests; in
// production tokens come from the identity provider.
func (v *Verifier) Issue(userID, email, role string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := &Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

type contextKey struct{}

// WithIdentity attaches an identity to ctx
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity attached to ctx, if any
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(*Identity)
	return id, ok && id != nil
}

// Require returns the caller or db.ErrUnauthenticated
func Require(id *Identity) error {
	if id == nil || id.UserID == "" {
		return db.ErrUnauthenticated
	}
	return nil
}

// RequireAdmin returns db.ErrUnauthenticated without a caller and
// db.ErrForbidden for a caller without the admin role
func RequireAdmin(id *Identity) error {
	if err := Require(id); err != nil {
		return err
	}
	if !id.Admin {
		return db.ErrForbidden
	}
	return nil
}

// IsAuthError reports whether err is an authentication or permission failure
func IsAuthError(err error) bool {
	return errors.Is(err, db.ErrUnauthenticated) || errors.Is(err, db.ErrForbidden)
}
