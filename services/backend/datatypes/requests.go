// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance. It is safe for
// concurrent use and caches struct metadata.
var validate = validator.New()

// SignupRequest is the body of POST /api/v1/user/signup.
type SignupRequest struct {
	Name             string `json:"name"`
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required,min=10"`
	EnrollmentNumber string `json:"enrollmentNumber" validate:"required"`
	Batch            string `json:"batch" validate:"required"`
	Course           string `json:"course" validate:"required"`
}

// Validate checks field constraints, not uniqueness.
func (r *SignupRequest) Validate() error {
	return validate.Struct(r)
}

// SigninRequest is the body of POST /api/v1/user/Signin.
type SigninRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (r *SigninRequest) Validate() error {
	return validate.Struct(r)
}

// StartChatRequest opens a new chat with an initial user message.
type StartChatRequest struct {
	Message string `json:"message" validate:"required"`
	Title   string `json:"title"`
}

func (r *StartChatRequest) Validate() error {
	return validate.Struct(r)
}

// SendMessageRequest appends a message to an existing chat.
type SendMessageRequest struct {
	Message string `json:"message" validate:"required"`
}

func (r *SendMessageRequest) Validate() error {
	return validate.Struct(r)
}

// ConsentRequest sets the user's data-collection flags. Pointers
// distinguish "not sent" from "explicitly false"; unsent flags keep
// their stored value.
type ConsentRequest struct {
	ResearchID       string `json:"researchId"`
	ConversationLogs *bool  `json:"conversationLogs"`
	AppUsage         *bool  `json:"appUsage"`
	Audio            *bool  `json:"audio"`
}

func (r *ConsentRequest) Validate() error {
	return validate.Struct(r)
}

// UsageEntry is one event inside a usage batch upload.
type UsageEntry struct {
	EventType string `json:"eventType" validate:"required"`
	Screen    string `json:"screen"`
	SessionID string `json:"sessionId"`
	Duration  int64  `json:"durationMs"`
	Timestamp int64  `json:"timestamp"`
}

// UsageBatchRequest is the body of POST /api/v1/usage/usage.
type UsageBatchRequest struct {
	Logs []UsageEntry `json:"logs" validate:"required,min=1,dive"`
}

func (r *UsageBatchRequest) Validate() error {
	return validate.Struct(r)
}

// ChatbotProfileRequest upserts the user's persona profile.
type ChatbotProfileRequest struct {
	Gender   string   `json:"gender" validate:"required,oneof=Male Female Other"`
	Purposes []string `json:"purposes" validate:"required,min=1,dive,required"`
}

func (r *ChatbotProfileRequest) Validate() error {
	return validate.Struct(r)
}

// StoreTokenRequest registers a device push token.
type StoreTokenRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform"`
}

func (r *StoreTokenRequest) Validate() error {
	return validate.Struct(r)
}

// AdminLoginRequest is shared by admin login and signup.
type AdminLoginRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (r *AdminLoginRequest) Validate() error {
	return validate.Struct(r)
}

// FlagChatRequest toggles a chat's review flag.
type FlagChatRequest struct {
	Flagged *bool  `json:"flagged" validate:"required"`
	Reason  string `json:"reason"`
}

func (r *FlagChatRequest) Validate() error {
	return validate.Struct(r)
}
