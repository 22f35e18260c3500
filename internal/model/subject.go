package model

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// maxIDLength bounds identifiers after normalization.
const maxIDLength = 128

// NormalizeID canonicalizes a subject or resource identifier: surrounding
// whitespace is trimmed and the result is NFC-normalized. Empty, overlong,
// control-character or non-UTF-8 identifiers are rejected with
// CodeInvalidSubject.
func NormalizeID(raw string) (string, error) {
	if !utf8.ValidString(raw) {
		return "", &Error{Code: CodeInvalidSubject, Message: "identifier is not valid UTF-8"}
	}
	id := norm.NFC.String(strings.TrimSpace(raw))
	if id == "" {
		return "", &Error{Code: CodeInvalidSubject, Message: "identifier is empty"}
	}
	if len(id) > maxIDLength {
		return "", Errorf(CodeInvalidSubject, "", "identifier exceeds %d bytes", maxIDLength)
	}
	for _, r := range id {
		if r < 0x20 || r == 0x7f {
			return "", &Error{Code: CodeInvalidSubject, Message: "identifier contains control characters"}
		}
	}
	return id, nil
}
