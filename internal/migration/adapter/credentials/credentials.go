package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cosmo-migrator/internal/migration/config"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	ErrTokenInvalid          = errors.New("token is invalid")
	ErrTokenSignatureInvalid = errors.New("token signature is invalid")
)

// NewTokenSource builds the token source selected by cfg.AuthMode. It returns
// nil for unauthenticated APIs.
func NewTokenSource(ctx context.Context, cfg config.APIConfig) (oauth2.TokenSource, error) {
	switch cfg.AuthMode {
	case "", config.AuthNone:
		return nil, nil
	case config.AuthClientCredentials:
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		if cfg.Scope != "" {
			cc.Scopes = []string{cfg.Scope}
		}
		return cc.TokenSource(ctx), nil
	case config.AuthStaticToken:
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"}), nil
	case config.AuthJWT:
		src, err := NewServiceTokenSource(ServiceTokenConfig{
			SigningKey: cfg.JWTSigningKey,
			Issuer:     cfg.JWTIssuer,
			Subject:    cfg.JWTSubject,
			Audience:   cfg.JWTAudience,
			Scope:      cfg.Scope,
			TTL:        cfg.JWTTTL,
		})
		if err != nil {
			return nil, err
		}
		return oauth2.ReuseTokenSource(nil, src), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.AuthMode)
	}
}

// NewHTTPClient returns a client that authenticates with ts when it is not nil.
func NewHTTPClient(ctx context.Context, ts oauth2.TokenSource, timeout time.Duration) *http.Client {
	if ts == nil {
		return &http.Client{Timeout: timeout}
	}
	client := oauth2.NewClient(ctx, ts)
	client.Timeout = timeout
	return client
}

// ServiceClaims are carried by self-signed service tokens.
type ServiceClaims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// ServiceTokenConfig configures NewServiceTokenSource.
type ServiceTokenConfig struct {
	SigningKey string
	Issuer     string
	Subject    string
	Audience   string
	Scope      string
	TTL        time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// ServiceTokenSource mints HS256 tokens signed with a shared key, for APIs
// that trust the migrator directly rather than an identity provider.
type ServiceTokenSource struct {
	cfg ServiceTokenConfig
	key []byte
}

// NewServiceTokenSource validates cfg and returns a token source.
func NewServiceTokenSource(cfg ServiceTokenConfig) (*ServiceTokenSource, error) {
	if cfg.SigningKey == "" {
		return nil, errors.New("jwt signing key cannot be empty")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("jwt TTL must be positive")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ServiceTokenSource{cfg: cfg, key: []byte(cfg.SigningKey)}, nil
}

// Token mints a fresh token.
func (s *ServiceTokenSource) Token() (*oauth2.Token, error) {
	now := s.cfg.Now()
	expiry := now.Add(s.cfg.TTL)
	claims := &ServiceClaims{
		Scope: s.cfg.Scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   s.cfg.Subject,
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if s.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.cfg.Audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign service token: %w", err)
	}
	return &oauth2.Token{AccessToken: signed, TokenType: "Bearer", Expiry: expiry}, nil
}

// ParseServiceToken verifies a token minted by ServiceTokenSource.
func ParseServiceToken(tokenString, signingKey string) (*ServiceClaims, error) {
	if tokenString == "" {
		return nil, ErrTokenInvalid
	}
	token, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenSignatureInvalid
		}
		return []byte(signingKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	claims, ok := token.Claims.(*ServiceClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
