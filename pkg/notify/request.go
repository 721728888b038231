// Package notify contains the public domain types for the push service:
// the inbound notification request, per-device delivery outcomes and the
// error taxonomy shared by the HTTP and pipeline ingestion paths.
package notify

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	// MaxTitleLength is the clamp applied to the notification title.
	MaxTitleLength = 200
	// MaxBodyLength is the clamp applied to the notification body.
	MaxBodyLength = 2000
)

// Request is a validated, immutable notification request. Construct it via
// ParseRequest; the zero value is not meaningful.
type Request struct {
	UserID      uuid.UUID
	Title       string
	Body        string
	Data        map[string]string
	HouseholdID *uuid.UUID
}

// rawRequest mirrors the wire shape. Pointer fields let us distinguish
// "absent" from "empty", and a type mismatch surfaces as a
// json.UnmarshalTypeError naming the field.
type rawRequest struct {
	UserID      *string           `json:"user_id"`
	Title       *string           `json:"title"`
	Body        *string           `json:"body"`
	Data        map[string]string `json:"data"`
	HouseholdID *string           `json:"household_id"`
}

// ParseRequest decodes and validates a raw request body. It returns a
// *ValidationError identifying the first failing field, checked in order:
// JSON shape, user_id, title, household_id. Title and body are sanitized,
// never rejected.
func ParseRequest(body []byte) (*Request, error) {
	var raw rawRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return nil, &ValidationError{Field: typeErr.Field, Reason: "wrong type"}
		}
		return nil, &ValidationError{Field: "body", Reason: "malformed JSON"}
	}

	if raw.UserID == nil || *raw.UserID == "" {
		return nil, &ValidationError{Field: "user_id", Reason: "required"}
	}
	userID, err := uuid.Parse(*raw.UserID)
	if err != nil {
		return nil, &ValidationError{Field: "user_id", Reason: "must be a UUID"}
	}

	if raw.Title == nil || *raw.Title == "" {
		return nil, &ValidationError{Field: "title", Reason: "required"}
	}

	req := &Request{
		UserID: userID,
		Title:  Sanitize(*raw.Title, MaxTitleLength),
		Data:   raw.Data,
	}
	if raw.Body != nil {
		req.Body = Sanitize(*raw.Body, MaxBodyLength)
	}

	if raw.HouseholdID != nil && *raw.HouseholdID != "" {
		householdID, err := uuid.Parse(*raw.HouseholdID)
		if err != nil {
			return nil, &ValidationError{Field: "household_id", Reason: "must be a UUID"}
		}
		req.HouseholdID = &householdID
	}

	return req, nil
}

// Sanitize strips control characters (below 0x20 plus DEL) and truncates the
// result to at most limit characters. It only clamps, it never errors, and
// it is idempotent.
func Sanitize(s string, limit int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7F {
			return -1
		}
		return r
	}, s)

	runes := []rune(cleaned)
	if len(runes) > limit {
		return string(runes[:limit])
	}
	return cleaned
}
