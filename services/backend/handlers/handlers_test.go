// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saathi-labs/companion-backend/pkg/logging"
	"github.com/saathi-labs/companion-backend/services/backend/auth"
	"github.com/saathi-labs/companion-backend/services/backend/gateway"
	"github.com/saathi-labs/companion-backend/services/backend/handlers"
	"github.com/saathi-labs/companion-backend/services/backend/llm"
	"github.com/saathi-labs/companion-backend/services/backend/observability"
	"github.com/saathi-labs/companion-backend/services/backend/push"
	"github.com/saathi-labs/companion-backend/services/backend/routes"
	"github.com/saathi-labs/companion-backend/services/backend/store"
	"github.com/saathi-labs/companion-backend/services/backend/tenant"
)

type fixture struct {
	router *gin.Engine
	model  *llm.Scripted
	sender *push.CaptureSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := tenant.NewStatic("app1", map[string]store.Stores{
		"app1": store.NewMemory(),
		"app2": store.NewMemory(),
	})
	tokens := auth.NewManager("access-secret", "refresh-secret", time.Hour, 24*time.Hour)
	model := llm.NewScripted("Hello ", "there!")
	sender := push.NewCaptureSender()
	logger := logging.New(logging.Config{Quiet: true})
	metrics := observability.New()

	h := handlers.New(registry, tokens, model, sender, logger, handlers.Config{
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	})
	gw := gateway.New(gateway.NewHub(logger), registry, tokens, model, metrics, logger)

	router := routes.New(routes.Deps{
		Registry: registry,
		Tokens:   tokens,
		Handlers: h,
		Gateway:  gw,
		Metrics:  metrics,
		Logger:   logger,
	})
	return &fixture{router: router, model: model, sender: sender}
}

// do sends a JSON request through the full router.
func (f *fixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// envelope unmarshals the success envelope's data field into out.
func envelope(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var body struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success, "body: %s", rec.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(body.Data, out))
	}
}

type authResponse struct {
	User struct {
		ID    string `json:"_id"`
		Email string `json:"email"`
	} `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func signupBody(email string) gin.H {
	return gin.H{
		"name":             "Asha",
		"email":            email,
		"password":         "longenough123",
		"enrollmentNumber": "EN-001",
		"batch":            "2025",
		"course":           "CS",
	}
}

// signup registers a user and returns the issued tokens.
func (f *fixture) signup(t *testing.T, email string) authResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/user/signup", signupBody(email), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp authResponse
	envelope(t, rec, &resp)
	return resp
}

// adminLogin creates an admin and logs in.
func (f *fixture) adminLogin(t *testing.T) string {
	t.Helper()
	body := gin.H{"name": "Dash", "email": "admin@saathilabs.in", "password": "dashboard1"}
	rec := f.do(t, http.MethodPost, "/api/v1/admin/signup", body, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/v1/admin/login", body, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	envelope(t, rec, &resp)
	return resp.AccessToken
}

// =========================================================================
// Auth
// =========================================================================

func TestSignup_DuplicateEmail_Conflict(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "asha@example.com")

	rec := f.do(t, http.MethodPost, "/api/v1/user/signup", signupBody("asha@example.com"), "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestSignup_ShortPassword_BadRequest(t *testing.T) {
	f := newFixture(t)
	body := signupBody("asha@example.com")
	body["password"] = "short"

	rec := f.do(t, http.MethodPost, "/api/v1/user/signup", body, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignin_WrongPassword_Unauthorized(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "asha@example.com")

	rec := f.do(t, http.MethodPost, "/api/v1/user/Signin",
		gin.H{"email": "asha@example.com", "password": "wrongpassword"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid email or password")
}

func TestSignin_SetsCookiesAndReturnsTokens(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "asha@example.com")

	rec := f.do(t, http.MethodPost, "/api/v1/user/Signin",
		gin.H{"email": "asha@example.com", "password": "longenough123"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp authResponse
	envelope(t, rec, &resp)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)

	cookies := rec.Result().Cookies()
	names := make([]string, 0, len(cookies))
	for _, cookie := range cookies {
		names = append(names, cookie.Name)
	}
	assert.Contains(t, names, "accessToken")
	assert.Contains(t, names, "refreshToken")
}

func TestRefreshToken_RotationRevokesOldToken(t *testing.T) {
	f := newFixture(t)
	first := f.signup(t, "asha@example.com")

	rec := f.do(t, http.MethodPost, "/api/v1/user/refresh-token",
		gin.H{"refreshToken": first.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var second authResponse
	envelope(t, rec, &second)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The first token was rotated out and no longer refreshes.
	rec = f.do(t, http.MethodPost, "/api/v1/user/refresh-token",
		gin.H{"refreshToken": first.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "revoked")
}

func TestLogout_VoidsRefreshToken(t *testing.T) {
	f := newFixture(t)
	resp := f.signup(t, "asha@example.com")

	rec := f.do(t, http.MethodPost, "/api/v1/user/logout", nil, resp.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/v1/user/refresh-token",
		gin.H{"refreshToken": resp.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoute_NoToken_Unauthorized(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/chat", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// =========================================================================
// Chat
// =========================================================================

func TestStartChat_AppendsAssistantReply(t *testing.T) {
	f := newFixture(t)
	user := f.signup(t, "asha@example.com")

	rec := f.do(t, http.MethodPost, "/api/v1/chat",
		gin.H{"message": "I had a rough day."}, user.AccessToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var chat struct {
		ID       string `json:"_id"`
		Title    string `json:"title"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	envelope(t, rec, &chat)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, "user", chat.Messages[0].Role)
	assert.Equal(t, "assistant", chat.Messages[1].Role)
	assert.Equal(t, "Hello there!", chat.Messages[1].Content)
	assert.Equal(t, "I had a rough day.", chat.Title)

	// The provider saw the persona system prompt first.
	calls := f.model.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, llm.RoleSystem, calls[0][0].Role)
}

func TestSendChatMessage_OtherUsersChat_NotFound(t *testing.T) {
	f := newFixture(t)
	owner := f.signup(t, "owner@example.com")
	other := f.signup(t, "other@example.com")

	rec := f.do(t, http.MethodPost, "/api/v1/chat",
		gin.H{"message": "hi"}, owner.AccessToken)
	require.Equal(t, http.StatusCreated, rec.Code)
	var chat struct {
		ID string `json:"_id"`
	}
	envelope(t, rec, &chat)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/chat/%s/message", chat.ID),
		gin.H{"message": "intruding"}, other.AccessToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteChat_HiddenFromUserVisibleToAdmin(t *testing.T) {
	f := newFixture(t)
	user := f.signup(t, "asha@example.com")

	rec := f.do(t, http.MethodPost, "/api/v1/chat", gin.H{"message": "hi"}, user.AccessToken)
	require.Equal(t, http.StatusCreated, rec.Code)
	var chat struct {
		ID string `json:"_id"`
	}
	envelope(t, rec, &chat)

	rec = f.do(t, http.MethodDelete, "/api/v1/chat/"+chat.ID, nil, user.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/chat", nil, user.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var chats []json.RawMessage
	envelope(t, rec, &chats)
	assert.Empty(t, chats)

	admin := f.adminLogin(t)
	rec = f.do(t, http.MethodGet, "/api/v1/admin/chats", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var listing struct {
		Total int64 `json:"total"`
	}
	envelope(t, rec, &listing)
	assert.Equal(t, int64(1), listing.Total)
}

func TestStartChat_ProviderRateLimit_Mapped(t *testing.T) {
	f := newFixture(t)
	user := f.signup(t, "asha@example.com")
	f.model.Err = fmt.Errorf("rate limited")
	f.model.Deltas = nil

	rec := f.do(t, http.MethodPost, "/api/v1/chat",
		gin.H{"message": "hi"}, user.AccessToken)
	// Unclassified provider errors surface as 500.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// =========================================================================
// Consent and usage
// =========================================================================

func TestUploadUsage_WithoutConsent_Forbidden(t *testing.T) {
	f := newFixture(t)
	user := f.signup(t, "asha@example.com")

	rec := f.do(t, http.MethodPost, "/api/v1/usage/usage",
		gin.H{"logs": []gin.H{{"eventType": "screen_view", "screen": "home"}}},
		user.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUploadUsage_WithConsent_Inserts(t *testing.T) {
	f := newFixture(t)
	user := f.signup(t, "asha@example.com")

	rec := f.do(t, http.MethodPost, "/api/v1/consent/consent",
		gin.H{"appUsage": true}, user.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/v1/usage/usage",
		gin.H{"logs": []gin.H{
			{"eventType": "screen_view", "screen": "home"},
			{"eventType": "session_end", "durationMs": 6000},
		}}, user.AccessToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		Inserted int `json:"inserted"`
	}
	envelope(t, rec, &resp)
	assert.Equal(t, 2, resp.Inserted)
}

func TestUpsertConsent_PartialUpdateKeepsOtherFlags(t *testing.T) {
	f := newFixture(t)
	user := f.signup(t, "asha@example.com")

	rec := f.do(t, http.MethodPost, "/api/v1/consent/consent",
		gin.H{"appUsage": true, "conversationLogs": true}, user.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	// Flip one flag; the other keeps its value.
	rec = f.do(t, http.MethodPost, "/api/v1/consent/consent",
		gin.H{"appUsage": false}, user.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/consent/consent", nil, user.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var consent struct {
		AppUsage         bool `json:"appUsage"`
		ConversationLogs bool `json:"conversationLogs"`
	}
	envelope(t, rec, &consent)
	assert.False(t, consent.AppUsage)
	assert.True(t, consent.ConversationLogs)
}

// =========================================================================
// Chatbot profile
// =========================================================================

func TestChatbotProfile_UpsertThenGet(t *testing.T) {
	f := newFixture(t)
	user := f.signup(t, "asha@example.com")

	rec := f.do(t, http.MethodGet, "/api/v1/chatbot/", nil, user.AccessToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/chatbot/",
		gin.H{"gender": "Female", "purposes": []string{"Friend", "Mentor"}}, user.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/chatbot/", nil, user.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var profile struct {
		Gender   string   `json:"gender"`
		Purposes []string `json:"purposes"`
	}
	envelope(t, rec, &profile)
	assert.Equal(t, "Female", profile.Gender)
	assert.Equal(t, []string{"Friend", "Mentor"}, profile.Purposes)
}

func TestChatbotProfile_InvalidGender_BadRequest(t *testing.T) {
	f := newFixture(t)
	user := f.signup(t, "asha@example.com")

	rec := f.do(t, http.MethodPost, "/api/v1/chatbot/",
		gin.H{"gender": "Robot", "purposes": []string{"Friend"}}, user.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =========================================================================
// Notifications
// =========================================================================

func TestNotifications_RegisterAndTestSend(t *testing.T) {
	f := newFixture(t)
	user := f.signup(t, "asha@example.com")

	rec := f.do(t, http.MethodPost, "/api/v1/notification/store-token",
		gin.H{"token": "device-1", "platform": "android"}, user.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/v1/notification/test", nil, user.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Sent int `json:"sent"`
	}
	envelope(t, rec, &resp)
	assert.Equal(t, 1, resp.Sent)

	deliveries := f.sender.Deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, "device-1", deliveries[0].Token)
}

// =========================================================================
// Admin
// =========================================================================

func TestAdmin_UserTokenRejected(t *testing.T) {
	f := newFixture(t)
	user := f.signup(t, "asha@example.com")

	rec := f.do(t, http.MethodGet, "/api/v1/admin/stats", nil, user.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminFlagChat_SetAndClear(t *testing.T) {
	f := newFixture(t)
	user := f.signup(t, "asha@example.com")
	admin := f.adminLogin(t)

	rec := f.do(t, http.MethodPost, "/api/v1/chat", gin.H{"message": "hi"}, user.AccessToken)
	require.Equal(t, http.StatusCreated, rec.Code)
	var chat struct {
		ID string `json:"_id"`
	}
	envelope(t, rec, &chat)

	rec = f.do(t, http.MethodPatch, "/api/v1/admin/chats/"+chat.ID+"/flag",
		gin.H{"flagged": true, "reason": "self harm keywords"}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var flagged struct {
		Flagged    bool   `json:"flagged"`
		FlagReason string `json:"flagReason"`
	}
	envelope(t, rec, &flagged)
	assert.True(t, flagged.Flagged)
	assert.Equal(t, "self harm keywords", flagged.FlagReason)

	rec = f.do(t, http.MethodGet, "/api/v1/admin/flagged", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Total int64 `json:"total"`
	}
	envelope(t, rec, &listing)
	assert.Equal(t, int64(1), listing.Total)

	// Clearing the flag drops the reason.
	rec = f.do(t, http.MethodPatch, "/api/v1/admin/chats/"+chat.ID+"/flag",
		gin.H{"flagged": false}, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	envelope(t, rec, &flagged)
	assert.False(t, flagged.Flagged)
	assert.Empty(t, flagged.FlagReason)
}

func TestAdminStudents_SearchAndCounts(t *testing.T) {
	f := newFixture(t)
	asha := f.signup(t, "asha@example.com")
	f.signup(t, "ravi@example.com")
	admin := f.adminLogin(t)

	rec := f.do(t, http.MethodPost, "/api/v1/chat", gin.H{"message": "hi"}, asha.AccessToken)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/admin/students?search=asha", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var listing struct {
		Students []struct {
			User struct {
				Email string `json:"email"`
			} `json:"user"`
			ChatCount int `json:"chatCount"`
		} `json:"students"`
		Total int `json:"total"`
	}
	envelope(t, rec, &listing)
	require.Equal(t, 1, listing.Total)
	assert.Equal(t, "asha@example.com", listing.Students[0].User.Email)
	assert.Equal(t, 1, listing.Students[0].ChatCount)
}

func TestAdminExport_PerAppShape(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "asha@example.com")
	admin := f.adminLogin(t)

	rec := f.do(t, http.MethodGet, "/api/v1/admin/export?apps=app1", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var export map[string]json.RawMessage
	envelope(t, rec, &export)
	require.Contains(t, export, "app1")
	require.Contains(t, export, "combined")

	var app struct {
		Users []json.RawMessage `json:"users"`
		Chats []json.RawMessage `json:"chats"`
	}
	require.NoError(t, json.Unmarshal(export["app1"], &app))
	assert.Len(t, app.Users, 1)
}

func TestAdminAnalytics_InvalidPeriod_BadRequest(t *testing.T) {
	f := newFixture(t)
	admin := f.adminLogin(t)

	rec := f.do(t, http.MethodGet, "/api/v1/admin/analytics?period=1y", nil, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
