package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ResponseStatus is the lifecycle state of a response.
type ResponseStatus string

// Response states. Submitted is terminal.
const (
	ResponseStatusDraft     ResponseStatus = "draft"
	ResponseStatusSubmitted ResponseStatus = "submitted"
)

// ParseResponseStatus converts a string to a ResponseStatus.
func ParseResponseStatus(s string) (ResponseStatus, error) {
	switch st := ResponseStatus(s); st {
	case ResponseStatusDraft, ResponseStatusSubmitted:
		return st, nil
	default:
		return "", fmt.Errorf("invalid response status: %q", s)
	}
}

// SubmitterInfo is passed through to the persisted payload untouched. Public
// (anonymous) sessions leave UserIdentifier unset.
type SubmitterInfo struct {
	UserIdentifier *string         `json:"user_identifier,omitempty" validate:"omitempty,max=255,no_null_bytes"`
	Email          *string         `json:"email,omitempty"           validate:"omitempty,email,max=320"`
	Language       *string         `json:"language,omitempty"        validate:"omitempty,max=10,no_null_bytes"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// Response is one respondent's persisted set of answers against a template.
type Response struct {
	ID                   uuid.UUID      `json:"id"`
	TemplateID           uuid.UUID      `json:"template_id"`
	TemplateVersion      int            `json:"template_version"`
	Status               ResponseStatus `json:"status"`
	Answers              AnswerSet      `json:"answers"`
	CurrentSectionID     string         `json:"current_section_id"`
	CompletionPercentage int            `json:"completion_percentage"`
	Submitter            *SubmitterInfo `json:"submitter,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	SubmittedAt          *time.Time     `json:"submitted_at,omitempty"`
}

// ListResponsesFilters narrows the responses of one template.
type ListResponsesFilters struct {
	Status *ResponseStatus `form:"status"`
	Limit  int             `form:"limit"  validate:"omitempty,min=1,max=1000"`
	Offset int             `form:"offset" validate:"omitempty,min=0,max=2147483647"`
}

// ListResponsesResponse represents the response for listing responses.
type ListResponsesResponse struct {
	Data   []Response `json:"data"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// OpenSessionRequest starts a fresh session for a template.
type OpenSessionRequest struct {
	TemplateID uuid.UUID      `json:"template_id" validate:"required"`
	Submitter  *SubmitterInfo `json:"submitter,omitempty"`
}

// SetAnswerRequest changes a single answer.
type SetAnswerRequest struct {
	FieldID string `json:"field_id" validate:"required,min=1,max=255,no_null_bytes"`
	Value   Value  `json:"value"`
}

// SetAnswersRequest changes several answers as one mutation event.
type SetAnswersRequest struct {
	Answers AnswerSet `json:"answers" validate:"required,min=1"`
}

// NavigateRequest moves the current section pointer. Exactly one of Direction
// or SectionID should be set.
type NavigateRequest struct {
	Direction string `json:"direction,omitempty"  validate:"omitempty,oneof=next previous"`
	SectionID string `json:"section_id,omitempty" validate:"omitempty,max=255,no_null_bytes"`
}

// FieldState is the computed state of one field.
type FieldState struct {
	ID       string `json:"id"`
	Visible  bool   `json:"visible"`
	Required bool   `json:"required"`
	Answered bool   `json:"answered"`
}

// SectionState is the computed state of one section and its fields.
type SectionState struct {
	ID      string       `json:"id"`
	Title   string       `json:"title"`
	Visible bool         `json:"visible"`
	Fields  []FieldState `json:"fields"`
}

// SessionView is the projection of a live session returned to respondents.
type SessionView struct {
	SessionID            uuid.UUID      `json:"session_id"`
	TemplateID           uuid.UUID      `json:"template_id"`
	Status               ResponseStatus `json:"status"`
	CurrentSectionID     string         `json:"current_section_id"`
	AtEnd                bool           `json:"at_end"`
	NoContent            bool           `json:"no_content"`
	CompletionPercentage int            `json:"completion_percentage"`
	Dirty                bool           `json:"dirty"`
	Answers              AnswerSet      `json:"answers"`
	Sections             []SectionState `json:"sections"`
	UpdatedAt            time.Time      `json:"updated_at"`
}
