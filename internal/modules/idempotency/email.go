package idempotency

import (
	"net/mail"
	"regexp"
	"strings"
	"time"
)

var (
	angleAddrRe = regexp.MustCompile(`<\s*([^<>\s@]+@[^<>\s@]+)\s*>`)
	bareAddrRe  = regexp.MustCompile(`([^\s<>"'(),;:]+@[^\s<>"'(),;:]+)`)

	replyPrefixRe = regexp.MustCompile(`^(?:re|fwd?)(?:\[\d+\])?\s*:\s*`)
	tagPrefixRe   = regexp.MustCompile(`^\[[^\]]*\]\s*`)
	spaceRe       = regexp.MustCompile(`\s+`)

	isoDateRe     = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	compactDateRe = regexp.MustCompile(`(?:^|\D)(\d{4})(\d{2})(\d{2})(?:\D|$)`)
	weekdayRe     = regexp.MustCompile(`(?i)^(?:mon|tue|wed|thu|fri|sat|sun)[a-z]*\.?,?\s+`)
)

// NormalizeFromAddr extracts a lowercased user@host from a From header such as
// `Name <addr>` or a bare address. Returns "" if no address is found.
func NormalizeFromAddr(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if m := angleAddrRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if m := bareAddrRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

// SubjectBase lowercases the subject, strips any leading run of reply/forward
// prefixes and [Tag] blocks, and collapses whitespace.
func SubjectBase(subject string) string {
	s := strings.ToLower(strings.TrimSpace(subject))
	for {
		before := s
		s = replyPrefixRe.ReplaceAllString(s, "")
		s = tagPrefixRe.ReplaceAllString(s, "")
		s = strings.TrimSpace(s)
		if s == before {
			break
		}
	}
	return spaceRe.ReplaceAllString(s, " ")
}

var headerDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.RFC3339,
	time.ANSIC,
	time.UnixDate,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04 -0700",
	"Jan 2, 2006 15:04:05",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 January 2006",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"01/02/2006",
}

// DateBucket renders a header date as YYYYMMDD. It tries an embedded
// YYYY-MM-DD or YYYYMMDD literal first, then generic parsing, then generic
// parsing with a leading weekday token removed. Returns "" when all fail.
func DateBucket(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if b := literalBucket(s); b != "" {
		return b
	}
	if t, ok := parseHeaderDate(s); ok {
		return t.UTC().Format("20060102")
	}
	if stripped := weekdayRe.ReplaceAllString(s, ""); stripped != s {
		if t, ok := parseHeaderDate(strings.TrimSpace(stripped)); ok {
			return t.UTC().Format("20060102")
		}
	}
	return ""
}

func literalBucket(s string) string {
	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		if b := validBucket(m[1], m[2], m[3]); b != "" {
			return b
		}
	}
	if m := compactDateRe.FindStringSubmatch(s); m != nil {
		if b := validBucket(m[1], m[2], m[3]); b != "" {
			return b
		}
	}
	return ""
}

func validBucket(y, m, d string) string {
	t, err := time.Parse("2006-01-02", y+"-"+m+"-"+d)
	if err != nil {
		return ""
	}
	return t.Format("20060102")
}

func parseHeaderDate(s string) (time.Time, bool) {
	if t, err := mail.ParseDate(s); err == nil {
		return t, true
	}
	// Drop a trailing "(UTC)"-style comment that some mailers append.
	if i := strings.LastIndex(s, " ("); i > 0 && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[:i])
	}
	for _, layout := range headerDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
