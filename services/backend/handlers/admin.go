// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/saathi-labs/companion-backend/services/backend/apierr"
	"github.com/saathi-labs/companion-backend/services/backend/auth"
	"github.com/saathi-labs/companion-backend/services/backend/datatypes"
	"github.com/saathi-labs/companion-backend/services/backend/middleware"
	"github.com/saathi-labs/companion-backend/services/backend/store"
)

// AdminLogin handles POST /api/v1/admin/login.
func (h *Handlers) AdminLogin(c *gin.Context) {
	var req datatypes.AdminLoginRequest
	if !bindJSON(c, &req) {
		return
	}

	t := middleware.GetTenant(c)
	admin, err := t.Stores.Admins.FindByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !auth.CheckPassword(admin.Password, req.Password)) {
		apierr.Abort(c, apierr.Unauthorized("invalid email or password"))
		return
	}
	if err != nil {
		apierr.Abort(c, apierr.Internal("login failed").WithCause(err))
		return
	}

	access, err := h.tokens.MintAccess(admin.ID.Hex(), admin.Email, t.AppID, true)
	if err != nil {
		apierr.Abort(c, apierr.Internal("token issuance failed").WithCause(err))
		return
	}
	refresh, err := h.tokens.MintRefresh(admin.ID.Hex(), t.AppID, true)
	if err != nil {
		apierr.Abort(c, apierr.Internal("token issuance failed").WithCause(err))
		return
	}
	if err := t.Stores.Admins.SetRefreshToken(c.Request.Context(), admin.ID, refresh); err != nil {
		apierr.Abort(c, apierr.Internal("token issuance failed").WithCause(err))
		return
	}

	h.setAuthCookies(c, access, refresh)
	ok(c, http.StatusOK, gin.H{
		"admin":        admin,
		"accessToken":  access,
		"refreshToken": refresh,
	})
}

// AdminSignup handles POST /api/v1/admin/signup.
func (h *Handlers) AdminSignup(c *gin.Context) {
	var req datatypes.AdminLoginRequest
	if !bindJSON(c, &req) {
		return
	}

	t := middleware.GetTenant(c)
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		apierr.Abort(c, apierr.Internal("signup failed").WithCause(err))
		return
	}

	admin := &datatypes.Admin{Name: req.Name, Email: req.Email, Password: hash}
	err = t.Stores.Admins.Create(c.Request.Context(), admin)
	if errors.Is(err, store.ErrDuplicate) {
		apierr.Abort(c, apierr.Conflict("admin with this email already exists"))
		return
	}
	if err != nil {
		apierr.Abort(c, apierr.Internal("signup failed").WithCause(err))
		return
	}
	ok(c, http.StatusCreated, admin)
}

// AdminLogout handles POST /api/v1/admin/logout (authenticated).
func (h *Handlers) AdminLogout(c *gin.Context) {
	t := middleware.GetTenant(c)
	admin := middleware.GetAdmin(c)

	if err := t.Stores.Admins.SetRefreshToken(c.Request.Context(), admin.ID, ""); err != nil {
		apierr.Abort(c, apierr.Internal("logout failed").WithCause(err))
		return
	}
	h.clearAuthCookies(c)
	ok(c, http.StatusOK, gin.H{"message": "logged out"})
}

// AdminProfile handles GET /api/v1/admin/profile.
func (h *Handlers) AdminProfile(c *gin.Context) {
	ok(c, http.StatusOK, middleware.GetAdmin(c))
}

// AdminStats handles GET /api/v1/admin/stats: headline KPIs plus a
// daily chat count series for the last 7 days. Grouping is done in
// code over a single fetch so the numbers stay consistent.
func (h *Handlers) AdminStats(c *gin.Context) {
	t := middleware.GetTenant(c)
	ctx := c.Request.Context()

	userCount, err := t.Stores.Users.Count(ctx)
	if err != nil {
		apierr.Abort(c, apierr.Internal("stats failed").WithCause(err))
		return
	}
	chats, err := t.Stores.Chats.All(ctx)
	if err != nil {
		apierr.Abort(c, apierr.Internal("stats failed").WithCause(err))
		return
	}

	var flagged, messages int
	daily := map[string]int{}
	cutoff := time.Now().UTC().AddDate(0, 0, -7)
	for _, chat := range chats {
		if chat.Flagged {
			flagged++
		}
		messages += len(chat.Messages)
		if chat.CreatedAt.After(cutoff) {
			daily[chat.CreatedAt.Format("2006-01-02")]++
		}
	}

	series := make([]gin.H, 0, 7)
	for i := 6; i >= 0; i-- {
		day := time.Now().UTC().AddDate(0, 0, -i).Format("2006-01-02")
		series = append(series, gin.H{"date": day, "chats": daily[day]})
	}

	ok(c, http.StatusOK, gin.H{
		"totalUsers":    userCount,
		"totalChats":    len(chats),
		"totalMessages": messages,
		"flaggedChats":  flagged,
		"dailyChats":    series,
	})
}

// studentRow is one row of GET /api/v1/admin/students.
type studentRow struct {
	User         datatypes.User `json:"user"`
	ChatCount    int            `json:"chatCount"`
	LastActivity *time.Time     `json:"lastActivity,omitempty"`
}

// AdminStudents handles GET /api/v1/admin/students with pagination
// and free-text search over name, email, and enrollment number.
func (h *Handlers) AdminStudents(c *gin.Context) {
	t := middleware.GetTenant(c)
	ctx := c.Request.Context()

	users, err := t.Stores.Users.List(ctx)
	if err != nil {
		apierr.Abort(c, apierr.Internal("student listing failed").WithCause(err))
		return
	}
	chats, err := t.Stores.Chats.All(ctx)
	if err != nil {
		apierr.Abort(c, apierr.Internal("student listing failed").WithCause(err))
		return
	}

	counts := map[primitive.ObjectID]int{}
	lastActivity := map[primitive.ObjectID]time.Time{}
	for _, chat := range chats {
		counts[chat.UserID]++
		if chat.UpdatedAt.After(lastActivity[chat.UserID]) {
			lastActivity[chat.UserID] = chat.UpdatedAt
		}
	}

	search := strings.ToLower(c.Query("search"))
	rows := make([]studentRow, 0, len(users))
	for _, u := range users {
		if search != "" &&
			!strings.Contains(strings.ToLower(u.Name), search) &&
			!strings.Contains(strings.ToLower(u.Email), search) &&
			!strings.Contains(strings.ToLower(u.EnrollmentNumber), search) {
			continue
		}
		row := studentRow{User: u, ChatCount: counts[u.ID]}
		if at, found := lastActivity[u.ID]; found {
			row.LastActivity = &at
		}
		rows = append(rows, row)
	}

	page, limit := pagination(c)
	total := len(rows)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	ok(c, http.StatusOK, gin.H{
		"students": rows[start:end],
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

// AdminChats handles GET /api/v1/admin/chats with optional userId and
// flagged filters.
func (h *Handlers) AdminChats(c *gin.Context) {
	t := middleware.GetTenant(c)

	filter := store.ChatFilter{}
	page, limit := pagination(c)
	filter.Page, filter.Limit = int64(page), int64(limit)

	if raw := c.Query("userId"); raw != "" {
		userID, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			apierr.Abort(c, apierr.BadRequest("invalid user id"))
			return
		}
		filter.UserID = userID
	}
	if raw := c.Query("flagged"); raw != "" {
		flagged := raw == "true"
		filter.Flagged = &flagged
	}

	chats, total, err := t.Stores.Chats.List(c.Request.Context(), filter)
	if err != nil {
		apierr.Abort(c, apierr.Internal("chat listing failed").WithCause(err))
		return
	}
	ok(c, http.StatusOK, gin.H{
		"chats": chats,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// AdminFlagged handles GET /api/v1/admin/flagged.
func (h *Handlers) AdminFlagged(c *gin.Context) {
	t := middleware.GetTenant(c)
	flagged := true
	chats, total, err := t.Stores.Chats.List(c.Request.Context(),
		store.ChatFilter{Flagged: &flagged})
	if err != nil {
		apierr.Abort(c, apierr.Internal("chat listing failed").WithCause(err))
		return
	}
	ok(c, http.StatusOK, gin.H{"chats": chats, "total": total})
}

// AdminFlagChat handles PATCH /api/v1/admin/chats/:chatId/flag.
func (h *Handlers) AdminFlagChat(c *gin.Context) {
	var req datatypes.FlagChatRequest
	if !bindJSON(c, &req) {
		return
	}

	t := middleware.GetTenant(c)
	chatID, err := primitive.ObjectIDFromHex(c.Param("chatId"))
	if err != nil {
		apierr.Abort(c, apierr.BadRequest("invalid chat id"))
		return
	}

	reason := req.Reason
	if !*req.Flagged {
		// Clearing the flag clears the reason with it.
		reason = ""
	}
	err = t.Stores.Chats.SetFlag(c.Request.Context(), chatID, *req.Flagged, reason)
	if errors.Is(err, store.ErrNotFound) {
		apierr.Abort(c, apierr.NotFound("chat not found"))
		return
	}
	if err != nil {
		apierr.Abort(c, apierr.Internal("flag update failed").WithCause(err))
		return
	}

	chat, err := t.Stores.Chats.Get(c.Request.Context(), chatID)
	if err != nil {
		apierr.Abort(c, apierr.Internal("flag update failed").WithCause(err))
		return
	}
	ok(c, http.StatusOK, chat)
}

// AdminAnalytics handles GET /api/v1/admin/analytics?period=24h|7d|30d:
// message volume per day over the period plus the five most active
// users.
func (h *Handlers) AdminAnalytics(c *gin.Context) {
	t := middleware.GetTenant(c)

	var window time.Duration
	switch c.DefaultQuery("period", "7d") {
	case "24h":
		window = 24 * time.Hour
	case "7d":
		window = 7 * 24 * time.Hour
	case "30d":
		window = 30 * 24 * time.Hour
	default:
		apierr.Abort(c, apierr.BadRequest("period must be 24h, 7d, or 30d"))
		return
	}
	cutoff := time.Now().UTC().Add(-window)

	chats, err := t.Stores.Chats.All(c.Request.Context())
	if err != nil {
		apierr.Abort(c, apierr.Internal("analytics failed").WithCause(err))
		return
	}

	perDay := map[string]int{}
	perUser := map[primitive.ObjectID]int{}
	for _, chat := range chats {
		for _, m := range chat.Messages {
			if m.Timestamp.Before(cutoff) {
				continue
			}
			perDay[m.Timestamp.Format("2006-01-02")]++
			if m.Role == datatypes.RoleUser {
				perUser[chat.UserID]++
			}
		}
	}

	days := make([]string, 0, len(perDay))
	for day := range perDay {
		days = append(days, day)
	}
	sort.Strings(days)
	trend := make([]gin.H, 0, len(days))
	for _, day := range days {
		trend = append(trend, gin.H{"date": day, "messages": perDay[day]})
	}

	type userCount struct {
		UserID   string `json:"userId"`
		Messages int    `json:"messages"`
	}
	top := make([]userCount, 0, len(perUser))
	for id, n := range perUser {
		top = append(top, userCount{UserID: id.Hex(), Messages: n})
	}
	sort.Slice(top, func(i, j int) bool { return top[i].Messages > top[j].Messages })
	if len(top) > 5 {
		top = top[:5]
	}

	ok(c, http.StatusOK, gin.H{"trend": trend, "topUsers": top})
}

// AdminExport handles GET /api/v1/admin/export?apps=app1,app2: a JSON
// export of users, chats, usage logs, and consents per requested app,
// plus combined totals. Spreadsheet rendering is left to the
// dashboard.
func (h *Handlers) AdminExport(c *gin.Context) {
	appIDs := h.registry.AppIDs()
	if raw := c.Query("apps"); raw != "" {
		appIDs = strings.Split(raw, ",")
	}

	export := gin.H{}
	var totalUsers, totalChats int
	for _, appID := range appIDs {
		appID = strings.TrimSpace(appID)
		t, err := h.registry.Resolve(c.Request.Context(), appID)
		if err != nil {
			apierr.Abort(c, apierr.BadRequest("unknown app id "+appID))
			return
		}

		users, err := t.Stores.Users.List(c.Request.Context())
		if err != nil {
			apierr.Abort(c, apierr.Internal("export failed").WithCause(err))
			return
		}
		chats, err := t.Stores.Chats.All(c.Request.Context())
		if err != nil {
			apierr.Abort(c, apierr.Internal("export failed").WithCause(err))
			return
		}
		usage, err := t.Stores.Usage.All(c.Request.Context())
		if err != nil {
			apierr.Abort(c, apierr.Internal("export failed").WithCause(err))
			return
		}
		consents := make([]datatypes.Consent, 0, len(users))
		for _, u := range users {
			consent, err := t.Stores.Consents.Get(c.Request.Context(), u.ID)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				apierr.Abort(c, apierr.Internal("export failed").WithCause(err))
				return
			}
			consents = append(consents, *consent)
		}

		totalUsers += len(users)
		totalChats += len(chats)
		export[appID] = gin.H{
			"users":    users,
			"chats":    chats,
			"usage":    usage,
			"consents": consents,
		}
	}

	export["combined"] = gin.H{
		"totalUsers": totalUsers,
		"totalChats": totalChats,
		"exportedAt": time.Now().UTC(),
	}
	ok(c, http.StatusOK, export)
}

// pagination reads page and limit query params with sane bounds.
func pagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
