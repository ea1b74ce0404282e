// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

// Package auth validates the bearer tokens the platform issues for the
// query API. Vigil does not run a login flow of its own: tokens are
// minted by the surrounding platform with the shared secret, and this
// package only parses and verifies them. GenerateToken exists for the
// admin CLI and tests.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/avedell/vigil/internal/config"
)

// Roles understood by the authorization layer.
const (
	RoleAdmin   = "admin"
	RoleSubject = "subject"
	RolePublic  = "public"
)

// defaultTokenTTL bounds tokens minted by GenerateToken.
const defaultTokenTTL = 24 * time.Hour

var ErrInvalidToken = errors.New("auth: invalid token")

// Claims are the verified contents of a bearer token. SubjectID is the
// platform subject the caller acts as; Role drives authorization.
type Claims struct {
	SubjectID string `json:"subject_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// Manager signs and verifies bearer tokens with the shared HMAC secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a token manager from the security configuration.
func NewManager(cfg config.SecurityConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	return &Manager{
		secret: []byte(cfg.JWTSecret),
		ttl:    defaultTokenTTL,
		now:    time.Now,
	}, nil
}

// GenerateToken mints a signed token for the subject with the role.
func (m *Manager) GenerateToken(subjectID, role string) (string, error) {
	now := m.now()
	claims := &Claims{
		SubjectID: subjectID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies the signature, algorithm, and time claims, and
// returns the parsed claims. Rejecting non-HMAC algorithms closes the
// usual algorithm confusion hole.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return m.now() }))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.SubjectID == "" || claims.Role == "" {
		return nil, fmt.Errorf("%w: missing subject or role", ErrInvalidToken)
	}
	return claims, nil
}
