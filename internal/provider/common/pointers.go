package common

import (
	"time"

	"github.com/google/uuid"
)

func GetString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func GetBool(ptr *bool) bool {
	if ptr == nil {
		return false
	}
	return *ptr
}

func GetInt(ptr *int) int {
	if ptr == nil {
		return 0
	}
	return *ptr
}

func GetUUIDString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

// TimePtr returns nil for the zero time so optional timestamps stay absent.
func TimePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
