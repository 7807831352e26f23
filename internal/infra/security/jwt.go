package security

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

// ErrKeyIDMissing indicates no kid is associated with the supplied key.
var ErrKeyIDMissing = errors.New("jwt: missing key identifier")

// ErrKeyNotRegistered indicates a supplied kid is unknown to the JWT manager.
var ErrKeyNotRegistered = errors.New("jwt: key not registered")

var (
	// ErrTokenExpired is returned by Parse when the exp claim has passed.
	ErrTokenExpired = errors.New("jwt: token expired")
	// ErrTokenInvalid covers malformed tokens, unknown kids and bad signatures.
	ErrTokenInvalid = errors.New("jwt: token invalid")
)

// JWTManager signs and verifies one token family and publishes its keys as a JWKS.
type JWTManager struct {
	KeyProvider KeyProvider
	issuer      string
	now         func() time.Time
	mu          sync.RWMutex
	publicKeys  map[string]*rsa.PublicKey
}

// NewJWTManager constructs a JWTManager for the supplied key provider.
func NewJWTManager(provider KeyProvider) *JWTManager {
	mgr := &JWTManager{
		KeyProvider: provider,
		now:         time.Now,
		publicKeys:  make(map[string]*rsa.PublicKey),
	}

	if provider != nil {
		for kid, key := range provider.ListVerificationKeys() {
			_ = mgr.RegisterPublicKey(kid, key)
		}
	}

	return mgr
}

// WithIssuer requires parsed tokens to carry iss.
func (m *JWTManager) WithIssuer(iss string) *JWTManager {
	m.issuer = strings.TrimSpace(iss)
	return m
}

// WithClock overrides the time source used for validation.
func (m *JWTManager) WithClock(now func() time.Time) *JWTManager {
	if now != nil {
		m.now = now
	}
	return m
}

// Issuer returns the configured iss value.
func (m *JWTManager) Issuer() string {
	return m.issuer
}

// RegisterPublicKey associates a kid with a public key for JWKS publication and future lookup.
func (m *JWTManager) RegisterPublicKey(kid string, key *rsa.PublicKey) error {
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return ErrKeyIDMissing
	}
	if key == nil {
		return fmt.Errorf("jwt: public key for %s is nil", kid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.publicKeys[kid] = key
	return nil
}

// GetSigningKey retrieves the active signing key from the provider.
func (m *JWTManager) GetSigningKey() (*rsa.PrivateKey, error) {
	if m.KeyProvider == nil {
		return nil, fmt.Errorf("jwt: key provider not configured")
	}
	return m.KeyProvider.GetSigningKey()
}

// GetVerificationKey retrieves a public key by kid.
func (m *JWTManager) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, ErrKeyIDMissing
	}

	m.mu.RLock()
	key, ok := m.publicKeys[kid]
	m.mu.RUnlock()
	if ok {
		return key, nil
	}

	if m.KeyProvider != nil {
		fetched, err := m.KeyProvider.GetVerificationKey(kid)
		if err == nil {
			_ = m.RegisterPublicKey(kid, fetched)
			return fetched, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrKeyNotRegistered, kid)
}

// JWKS produces the JSON Web Key Set for registered keys.
func (m *JWTManager) JWKS() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.publicKeys) == 0 {
		return json.Marshal(struct {
			Keys []any `json:"keys"`
		}{Keys: []any{}})
	}

	keys := make([]map[string]string, 0, len(m.publicKeys))
	for kid, key := range m.publicKeys {
		if key == nil {
			continue
		}
		keys = append(keys, buildJWK(kid, key))
	}

	payload := map[string]any{"keys": keys}
	return json.Marshal(payload)
}

func buildJWK(kid string, key *rsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}

// Sign signs claims with the provider's active key and stamps its kid in the header.
func (m *JWTManager) Sign(claims jwt.Claims) (string, error) {
	if claims == nil {
		return "", fmt.Errorf("jwt: claims required")
	}
	if m.KeyProvider == nil {
		return "", fmt.Errorf("jwt: key provider not configured")
	}
	kid := strings.TrimSpace(m.KeyProvider.SigningKeyID())
	if kid == "" {
		return "", ErrKeyIDMissing
	}

	signingKey, err := m.GetSigningKey()
	if err != nil {
		return "", fmt.Errorf("jwt: get signing key: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, nil
}

// Parse verifies raw against the registered keys and decodes it into claims.
func (m *JWTManager) Parse(raw string, claims jwt.Claims) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	_, err := jwt.NewParser(opts...).ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		return m.GetVerificationKey(kid)
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return nil
}

// AccessTokenClaims carries the caller identity used by the request-time gate.
type AccessTokenClaims struct {
	UserID string   `json:"uid"`
	Name   string   `json:"name"`
	Tenant string   `json:"tenant"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// RefreshTokenClaims identifies the refresh row a token was issued with.
type RefreshTokenClaims struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid"`
	Tenant    string `json:"tenant"`
	jwt.RegisteredClaims
}

// TokenOptions configures creation of access and refresh claims.
type TokenOptions struct {
	UserID    string
	Name      string
	Tenant    string
	Roles     []string
	SessionID string
	Issuer    string
	TTL       time.Duration
	IssuedAt  time.Time
	JTI       string
}

func (o TokenOptions) registered() (jwt.RegisteredClaims, error) {
	userID := strings.TrimSpace(o.UserID)
	if userID == "" {
		return jwt.RegisteredClaims{}, fmt.Errorf("jwt: user id is required")
	}
	if strings.TrimSpace(o.Tenant) == "" {
		return jwt.RegisteredClaims{}, fmt.Errorf("jwt: tenant is required")
	}
	if o.TTL <= 0 {
		return jwt.RegisteredClaims{}, fmt.Errorf("jwt: ttl must be positive")
	}

	now := o.IssuedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	jti := strings.TrimSpace(o.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	return jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    strings.TrimSpace(o.Issuer),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(o.TTL)),
		ID:        jti,
	}, nil
}

// NewAccessTokenClaims constructs access token claims.
func NewAccessTokenClaims(opts TokenOptions) (*AccessTokenClaims, error) {
	registered, err := opts.registered()
	if err != nil {
		return nil, err
	}
	return &AccessTokenClaims{
		UserID:           registered.Subject,
		Name:             strings.TrimSpace(opts.Name),
		Tenant:           strings.TrimSpace(opts.Tenant),
		Roles:            normalizeRoles(opts.Roles),
		RegisteredClaims: registered,
	}, nil
}

// NewRefreshTokenClaims constructs refresh token claims bound to opts.SessionID.
func NewRefreshTokenClaims(opts TokenOptions) (*RefreshTokenClaims, error) {
	registered, err := opts.registered()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.SessionID) == "" {
		return nil, fmt.Errorf("jwt: session id is required")
	}
	return &RefreshTokenClaims{
		UserID:           registered.Subject,
		SessionID:        strings.TrimSpace(opts.SessionID),
		Tenant:           strings.TrimSpace(opts.Tenant),
		RegisteredClaims: registered,
	}, nil
}

func normalizeRoles(input []string) []string {
	result := make([]string, 0, len(input))
	seen := make(map[string]struct{}, len(input))
	for _, role := range input {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, exists := seen[role]; exists {
			continue
		}
		seen[role] = struct{}{}
		result = append(result, role)
	}
	return result
}
