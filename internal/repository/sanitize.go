package repository

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// sanitizeForPG removes PostgreSQL-incompatible bytes from strings:
// null bytes (\x00 / \u0000) and invalid UTF-8 sequences.
func sanitizeForPG(s string) string {
	s = strings.ReplaceAll(s, "\\u0000", "")
	s = strings.ReplaceAll(s, "\\U0000", "")
	if strings.ContainsRune(s, 0) {
		s = strings.ReplaceAll(s, "\x00", "")
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return s
}

// sanitizeJSONB sanitizes a json.RawMessage for PostgreSQL JSONB insertion.
// Removes null bytes and invalid UTF-8, then validates JSON. Returns nil if invalid/empty.
// Interest rate model payloads come straight from contract queries, so they
// get the same treatment as any other untrusted JSON.
func sanitizeJSONB(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	s := sanitizeForPG(string(raw))
	if !json.Valid([]byte(s)) {
		return nil
	}
	return []byte(s)
}
