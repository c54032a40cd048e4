// Package auth validates API keys and bearer JWTs for the HTTP API.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

var (
	ErrAuthDisabled = errors.New("auth disabled")
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidKey   = errors.New("invalid api key")
)

// Config configures authentication. With no keys and no secret every
// request is accepted.
type Config struct {
	JWTSecret   string
	TokenExpiry time.Duration
	APIKeys     []string
}

// Principal identifies an authenticated caller.
type Principal struct {
	ID     string
	Name   string
	Method string // "api_key" or "jwt"
}

// Service validates JWTs and API keys.
type Service struct {
	jwt     *JWTService
	apiKeys map[string]*Principal
}

// NewService constructs an auth service from static configuration.
func NewService(cfg Config) *Service {
	service := &Service{apiKeys: map[string]*Principal{}}
	if strings.TrimSpace(cfg.JWTSecret) != "" {
		service.jwt = NewJWTService(cfg.JWTSecret, cfg.TokenExpiry)
	}
	for _, key := range cfg.APIKeys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		sum := sha256.Sum256([]byte(key))
		service.apiKeys[key] = &Principal{ID: "api_" + hex.EncodeToString(sum[:8]), Method: "api_key"}
	}
	return service
}

// Enabled reports whether auth checks should run.
func (s *Service) Enabled() bool {
	return s != nil && (s.jwt != nil || len(s.apiKeys) > 0)
}

// GenerateJWT issues a signed token for subject.
func (s *Service) GenerateJWT(subject, name string) (string, error) {
	if s == nil || s.jwt == nil {
		return "", ErrAuthDisabled
	}
	return s.jwt.Generate(subject, name)
}

// ValidateAPIKey checks key against every configured key in constant time.
func (s *Service) ValidateAPIKey(key string) (*Principal, error) {
	if s == nil || len(s.apiKeys) == 0 {
		return nil, ErrAuthDisabled
	}
	input := []byte(strings.TrimSpace(key))
	var matched *Principal
	for stored, principal := range s.apiKeys {
		if subtle.ConstantTimeCompare(input, []byte(stored)) == 1 {
			matched = principal
		}
	}
	if matched == nil {
		return nil, ErrInvalidKey
	}
	return matched, nil
}

// Authenticate accepts a credential that is either an API key or a JWT.
func (s *Service) Authenticate(credential string) (*Principal, error) {
	if !s.Enabled() {
		return nil, ErrAuthDisabled
	}
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, ErrInvalidKey
	}
	if len(s.apiKeys) > 0 {
		if p, err := s.ValidateAPIKey(credential); err == nil {
			return p, nil
		}
	}
	if s.jwt != nil && strings.Count(credential, ".") == 2 {
		return s.jwt.Validate(credential)
	}
	return nil, ErrInvalidKey
}
