package flow

import (
	"regexp"
	"strconv"
	"strings"
)

// Work-group locators come in two shapes: a t.me message link whose internal
// chat id must be prefixed with -100 to obtain the real chat id, or a bare
// (usually negative) numeric id pasted from a client.
var (
	groupLinkRe = regexp.MustCompile(`^https://t\.me/c/(\d+)(?:/(\d+))?/?$`)
	bareIDRe    = regexp.MustCompile(`^-?\d+$`)

	sheetURLRe = regexp.MustCompile(`^https://docs\.google\.com/spreadsheets/d/([a-zA-Z0-9_-]+)`)
)

// ParseGroupLocator extracts the chat id and optional topic id from a group
// locator. Returns ok=false when the input matches neither shape.
func ParseGroupLocator(s string) (chatID int64, topicID int, ok bool) {
	s = strings.TrimSpace(s)

	if m := groupLinkRe.FindStringSubmatch(s); m != nil {
		id, err := strconv.ParseInt("-100"+m[1], 10, 64)
		if err != nil {
			return 0, 0, false
		}
		topic := 0
		if m[2] != "" {
			topic, err = strconv.Atoi(m[2])
			if err != nil {
				return 0, 0, false
			}
		}
		return id, topic, true
	}

	if bareIDRe.MatchString(s) {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, 0, false
		}
		return id, 0, true
	}

	return 0, 0, false
}

// ParseSheetURL extracts the document id from a spreadsheet URL.
func ParseSheetURL(s string) (docID string, ok bool) {
	m := sheetURLRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseNumericID parses a bare numeric identity.
func ParseNumericID(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if !bareIDRe.MatchString(s) {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
