// Package auth issues and checks HS256 bearer tokens. The token subject is
// the acting user id.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/oggyb/soundmatch/internal/config"
	svcErr "github.com/oggyb/soundmatch/internal/errors"
)

const metadataKey = "authorization"

var errNoToken = errors.New("missing bearer token")

type actorKey struct{}

// WithActor returns ctx carrying the authenticated user id.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

// ActorFrom returns the authenticated user id, if any.
func ActorFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(actorKey{}).(string)
	return id, ok && id != ""
}

type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  clockwork.Clock
	// methods that never need a token, by full method name prefix
	public []string
}

// New builds an Authenticator from the auth config section. With an empty
// secret Enabled reports false and the interceptor lets every call through.
func New(cfg *config.Config, clock clockwork.Clock) *Authenticator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Authenticator{
		secret: []byte(cfg.Auth.JWTSecret),
		issuer: cfg.Auth.Issuer,
		ttl:    cfg.Auth.TokenTTL,
		clock:  clock,
		public: []string{
			"/grpc.health.v1.Health/",
			"/grpc.reflection.",
		},
	}
}

func (a *Authenticator) Enabled() bool {
	return len(a.secret) > 0
}

// Sign issues a token for userID valid for the configured TTL.
func (a *Authenticator) Sign(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	now := a.clock.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    a.issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses token and returns its subject.
func (a *Authenticator) Validate(token string) (string, error) {
	if token == "" {
		return "", errNoToken
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.secret, nil
		},
		jwt.WithIssuer(a.issuer),
		jwt.WithTimeFunc(a.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", errors.New("invalid token")
	}
	return claims.Subject, nil
}

// UnaryServerInterceptor puts the token subject into the call context.
// Calls without a valid token fail with Unauthenticated.
func (a *Authenticator) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !a.Enabled() || a.isPublic(info.FullMethod) {
			return handler(ctx, req)
		}
		userID, err := a.Validate(bearer(ctx))
		if err != nil {
			return nil, svcErr.Map(svcErr.New(svcErr.CodeUnauthenticated, "%v", err))
		}
		return handler(WithActor(ctx, userID), req)
	}
}

func (a *Authenticator) isPublic(method string) bool {
	for _, p := range a.public {
		if strings.HasPrefix(method, p) {
			return true
		}
	}
	return false
}

func bearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(metadataKey) {
		if token, ok := strings.CutPrefix(v, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return ""
}
