package dwp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/stream"
)

// Identity represents an authenticated caller.
type Identity struct {
	// Subject is the authenticated user or service name.
	Subject string `json:"subject"`

	// UserID is the queue user the subject acts as. Nil for services.
	UserID id.UserID `json:"user_id,omitempty"`

	Role   smartqueue.Role `json:"role"`
	VIP    bool            `json:"vip,omitempty"`
	Senior bool            `json:"senior,omitempty"`

	// Scopes defines what operations are permitted.
	// Examples: "token:write", "queue:serve", "admin", "*"
	Scopes []string `json:"scopes,omitempty"`
}

// HasScope returns true if the identity has the given scope.
// A wildcard "*" scope grants all permissions.
func (ident *Identity) HasScope(scope string) bool {
	for _, s := range ident.Scopes {
		if s == ScopeAll || s == scope {
			return true
		}
	}
	return false
}

// Actor converts the identity into the caller seen by the engine.
func (ident *Identity) Actor(ip string) smartqueue.Actor {
	return smartqueue.Actor{
		UserID: ident.UserID,
		Role:   ident.Role,
		VIP:    ident.VIP,
		Senior: ident.Senior,
		IP:     ip,
	}
}

// CanFollow reports whether the identity may subscribe to topic. Only
// staff may follow another user's tokens.
func (ident *Identity) CanFollow(topic string) bool {
	if ident == nil {
		return false
	}
	kind, entityID := stream.ParseTopicEntity(topic)
	if kind != "user" || ident.Role.IsStaff() {
		return true
	}
	return !ident.UserID.IsNil() && ident.UserID.String() == entityID
}

// Authenticator validates credentials and returns an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Identity, error)
}

// ErrUnauthorized indicates authentication failure.
var ErrUnauthorized = errors.New("dwp: unauthorized")

// ── API Key authenticator ───────────────────────────

// APIKeyEntry maps a key to an identity.
type APIKeyEntry struct {
	Key      string
	Identity Identity
}

// APIKeyAuthenticator validates API keys against a static list. It suits
// kiosks and display boards that hold a fixed device key.
type APIKeyAuthenticator struct {
	keys map[string]*Identity
}

// NewAPIKeyAuthenticator creates an API key authenticator. Entries
// without scopes get the default scopes of their role.
func NewAPIKeyAuthenticator(entries ...APIKeyEntry) *APIKeyAuthenticator {
	keys := make(map[string]*Identity, len(entries))
	for _, e := range entries {
		ident := e.Identity
		if len(ident.Scopes) == 0 {
			ident.Scopes = ScopesForRole(ident.Role)
		}
		keys[e.Key] = &ident
	}
	return &APIKeyAuthenticator{keys: keys}
}

func (a *APIKeyAuthenticator) Authenticate(_ context.Context, token string) (*Identity, error) {
	ident, ok := a.keys[bearer(token)]
	if !ok {
		return nil, ErrUnauthorized
	}
	return ident, nil
}

// ── JWT authenticator ───────────────────────────────

// Claims are the JWT claims understood by JWTAuthenticator. The subject
// is the user ID.
type Claims struct {
	Role   smartqueue.Role `json:"role"`
	VIP    bool            `json:"vip,omitempty"`
	Senior bool            `json:"senior,omitempty"`

	// Scope is a space-separated scope list. Empty means the role defaults.
	Scope string `json:"scope,omitempty"`

	jwt.RegisteredClaims
}

// JWTAuthenticator validates HMAC-signed bearer tokens issued by the
// platform's auth service.
type JWTAuthenticator struct {
	secret []byte
	parser *jwt.Parser
}

// JWTOption configures a JWTAuthenticator.
type JWTOption func(*jwtConfig)

type jwtConfig struct {
	issuer   string
	audience string
	leeway   time.Duration
}

// WithIssuer requires the "iss" claim to match.
func WithIssuer(iss string) JWTOption {
	return func(c *jwtConfig) { c.issuer = iss }
}

// WithAudience requires the "aud" claim to contain aud.
func WithAudience(aud string) JWTOption {
	return func(c *jwtConfig) { c.audience = aud }
}

// WithLeeway tolerates clock skew when checking time claims.
func WithLeeway(d time.Duration) JWTOption {
	return func(c *jwtConfig) { c.leeway = d }
}

// NewJWTAuthenticator creates a JWT authenticator for HS256 tokens signed
// with secret. Tokens must carry an expiry.
func NewJWTAuthenticator(secret []byte, opts ...JWTOption) *JWTAuthenticator {
	var cfg jwtConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	popts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.issuer != "" {
		popts = append(popts, jwt.WithIssuer(cfg.issuer))
	}
	if cfg.audience != "" {
		popts = append(popts, jwt.WithAudience(cfg.audience))
	}
	if cfg.leeway > 0 {
		popts = append(popts, jwt.WithLeeway(cfg.leeway))
	}
	return &JWTAuthenticator{secret: secret, parser: jwt.NewParser(popts...)}
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, token string) (*Identity, error) {
	claims := &Claims{}
	_, err := a.parser.ParseWithClaims(bearer(token), claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	userID, err := id.ParseUserID(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject: %w", ErrUnauthorized, err)
	}

	scopes := strings.Fields(claims.Scope)
	if len(scopes) == 0 {
		scopes = ScopesForRole(claims.Role)
	}
	return &Identity{
		Subject: claims.Subject,
		UserID:  userID,
		Role:    claims.Role,
		VIP:     claims.VIP,
		Senior:  claims.Senior,
		Scopes:  scopes,
	}, nil
}

// SignJWT issues an HS256 token for claims. It is used by tests and the
// development tooling; production tokens come from the auth service.
func SignJWT(secret []byte, claims *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ── No-op authenticator ─────────────────────────────

// NoopAuthenticator accepts all tokens with an admin identity.
// Use for development only.
type NoopAuthenticator struct{}

func (a *NoopAuthenticator) Authenticate(_ context.Context, _ string) (*Identity, error) {
	return &Identity{
		Subject: "anonymous",
		Role:    smartqueue.RoleAdmin,
		Scopes:  []string{ScopeAll},
	}, nil
}

// ── Composite authenticator ─────────────────────────

// CompositeAuthenticator tries multiple authenticators in order.
// The first successful authentication wins.
type CompositeAuthenticator struct {
	authenticators []Authenticator
}

// NewCompositeAuthenticator chains multiple authenticators.
func NewCompositeAuthenticator(auths ...Authenticator) *CompositeAuthenticator {
	return &CompositeAuthenticator{authenticators: auths}
}

func (c *CompositeAuthenticator) Authenticate(ctx context.Context, token string) (*Identity, error) {
	for _, auth := range c.authenticators {
		ident, err := auth.Authenticate(ctx, token)
		if err == nil {
			return ident, nil
		}
	}
	return nil, ErrUnauthorized
}

func bearer(token string) string {
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}

// ── Scope constants ─────────────────────────────────

const (
	ScopeTokenRead     = "token:read"
	ScopeTokenWrite    = "token:write"
	ScopeQueueRead     = "queue:read"
	ScopeQueueServe    = "queue:serve"
	ScopeAnalyticsRead = "analytics:read"
	ScopeSubscribe     = "subscribe"
	ScopeStatsRead     = "stats:read"
	ScopeAdmin         = "admin"
	ScopeAll           = "*"
)

// ScopesForRole returns the default scopes of a role.
func ScopesForRole(role smartqueue.Role) []string {
	switch {
	case role == smartqueue.RoleAdmin:
		return []string{ScopeAll}
	case role.IsStaff():
		return []string{
			ScopeTokenRead, ScopeTokenWrite, ScopeQueueRead, ScopeQueueServe,
			ScopeAnalyticsRead, ScopeSubscribe, ScopeStatsRead,
		}
	default:
		return []string{ScopeTokenRead, ScopeTokenWrite, ScopeQueueRead, ScopeSubscribe}
	}
}

// RequiredScope returns the minimum scope required for a method.
func RequiredScope(method string) string {
	switch method {
	case MethodAuth:
		return ""
	case MethodTokenGet, MethodTokenByNumber, MethodTokenList:
		return ScopeTokenRead
	case MethodTokenAdmit, MethodTokenCancel:
		return ScopeTokenWrite
	case MethodTokenStart, MethodTokenComplete, MethodTokenExpire, MethodQueueCallNext:
		return ScopeQueueServe
	case MethodQueueGet, MethodQueueList, MethodQueuePositions, MethodEstimatePredict:
		return ScopeQueueRead
	case MethodQueueAnalytics:
		return ScopeAnalyticsRead
	case MethodSubscribe, MethodUnsubscribe:
		return ScopeSubscribe
	case MethodStats:
		return ScopeStatsRead
	default:
		return ScopeAdmin
	}
}
