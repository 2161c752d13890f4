package db

import "errors"

var errDBUnavailable = errors.New("db unavailable")

func stringPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
