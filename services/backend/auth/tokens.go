// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package auth issues and verifies the backend's JWTs and hashes
// passwords. Access and refresh tokens are HS256, signed with separate
// secrets. Every token carries an app_id claim so the verifier can
// route the subject lookup to the issuing tenant; a token presented
// against a tenant that does not hold its subject is rejected by the
// middleware, not here.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidToken covers bad signatures, wrong algorithms, malformed
// tokens, and expiry.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the payload of both token kinds. Field names match the
// mobile clients' expectations.
type Claims struct {
	UserID string `json:"_id"`
	Email  string `json:"email,omitempty"`
	AppID  string `json:"app_id"`
	Admin  bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and verifies tokens.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewManager builds a Manager from the two signing secrets.
func NewManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// MintAccess issues an access token for the subject.
func (m *Manager) MintAccess(userID, email, appID string, admin bool) (string, error) {
	return m.mint(m.accessSecret, m.accessTTL, Claims{
		UserID: userID,
		Email:  email,
		AppID:  appID,
		Admin:  admin,
	})
}

// MintRefresh issues a refresh token. Refresh tokens omit the email
// claim; they are matched against the copy persisted on the account.
func (m *Manager) MintRefresh(userID, appID string, admin bool) (string, error) {
	return m.mint(m.refreshSecret, m.refreshTTL, Claims{
		UserID: userID,
		AppID:  appID,
		Admin:  admin,
	})
}

func (m *Manager) mint(secret []byte, ttl time.Duration, claims Claims) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// VerifyAccess parses and validates an access token.
func (m *Manager) VerifyAccess(token string) (*Claims, error) {
	return verify(token, m.accessSecret)
}

// VerifyRefresh parses and validates a refresh token.
func (m *Manager) VerifyRefresh(token string) (*Claims, error) {
	return verify(token, m.refreshSecret)
}

func verify(token string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	return claims, nil
}

// HashPassword bcrypt-hashes a plaintext password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether the plaintext matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
