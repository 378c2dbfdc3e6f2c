// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager() *Manager {
	return NewManager("access-secret", "refresh-secret", time.Hour, 24*time.Hour)
}

func TestManager_MintAndVerifyAccess(t *testing.T) {
	m := newManager()

	token, err := m.MintAccess("user-1", "u@example.edu", "app2", false)
	require.NoError(t, err)

	claims, err := m.VerifyAccess(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "u@example.edu", claims.Email)
	assert.Equal(t, "app2", claims.AppID)
	assert.False(t, claims.Admin)
}

func TestManager_RefreshSecretIsSeparate(t *testing.T) {
	m := newManager()

	refresh, err := m.MintRefresh("user-1", "app1", false)
	require.NoError(t, err)

	_, err = m.VerifyAccess(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken, "refresh tokens never pass access verification")

	claims, err := m.VerifyRefresh(refresh)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "app1", claims.AppID)
}

func TestManager_ExpiredToken(t *testing.T) {
	m := NewManager("access-secret", "refresh-secret", -time.Minute, time.Hour)

	token, err := m.MintAccess("user-1", "u@example.edu", "app1", false)
	require.NoError(t, err)

	_, err = m.VerifyAccess(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_TamperedToken(t *testing.T) {
	m := newManager()

	token, err := m.MintAccess("user-1", "u@example.edu", "app1", false)
	require.NoError(t, err)

	other := NewManager("different-secret", "refresh-secret", time.Hour, time.Hour)
	_, err = other.VerifyAccess(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery", hash)
	assert.True(t, CheckPassword(hash, "correct horse battery"))
	assert.False(t, CheckPassword(hash, "wrong password"))
}
