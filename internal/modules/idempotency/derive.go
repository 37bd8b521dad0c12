package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Derive maps a source descriptor and normalized payload to the policy key and
// idempotency keys. It is pure: the same inputs always give the same keys.
func Derive(src Source, norm Normalized) (Keys, error) {
	system := strings.ToLower(strings.TrimSpace(src.System))
	contentType := strings.ToLower(strings.TrimSpace(norm.ContentType))

	switch system {
	case "telegram":
		if strings.TrimSpace(norm.URLCanonical) != "" {
			return deriveTelegramLink(norm), nil
		}
		return deriveTelegramThought(src, norm)
	case "email", "email-batch":
		switch contentType {
		case "newsletter":
			return deriveNewsletter(src, norm)
		case "correspondence", "correspondence_thread":
			return deriveCorrespondence(src, norm)
		}
	}
	return Keys{}, unsupportedErr(src, norm)
}

func deriveTelegramLink(norm Normalized) Keys {
	canonical := CanonicalizeURL(norm.URLCanonical)
	return Keys{
		PolicyKey:    PolicyTelegramLink,
		KeyPrimary:   strPtr(canonical),
		KeySecondary: strPtr(sha256Hex(canonical)),
	}
}

func deriveTelegramThought(src Source, norm Normalized) (Keys, error) {
	chatID := strings.TrimSpace(src.ChatID)
	messageID := strings.TrimSpace(src.MessageID)
	if chatID == "" || messageID == "" {
		return Keys{}, derivationErr("telegram thought: chat_id and message_id are required", src, norm)
	}
	keys := Keys{
		PolicyKey:  PolicyTelegramThought,
		KeyPrimary: strPtr("tg:" + chatID + ":" + messageID),
	}
	text := strings.TrimSpace(norm.CleanText)
	if text == "" {
		text = strings.TrimSpace(norm.CaptureText)
	}
	if text != "" {
		keys.KeySecondary = strPtr(sha256Hex(text))
	}
	return keys, nil
}

func deriveNewsletter(src Source, norm Normalized) (Keys, error) {
	subject := strings.TrimSpace(src.Subject)
	if subject == "" {
		return Keys{}, derivationErr("email newsletter: subject is required", src, norm)
	}
	keys := Keys{PolicyKey: PolicyEmailNewsletter}
	if mid := strings.TrimSpace(src.MessageID); mid != "" {
		keys.KeyPrimary = strPtr(mid)
	}
	from := NormalizeFromAddr(src.FromAddr)
	base := SubjectBase(subject)
	bucket := DateBucket(src.Date)
	if from != "" && base != "" && bucket != "" {
		keys.KeySecondary = strPtr(sha256Hex(strings.Join([]string{from, base, bucket}, "|")))
	}
	if keys.KeyPrimary == nil && keys.KeySecondary == nil {
		return Keys{}, derivationErr("email newsletter: neither message_id nor from/subject/date key is derivable", src, norm)
	}
	return keys, nil
}

// Participants are deliberately left out of the key: a thread is identified
// by its subject alone.
func deriveCorrespondence(src Source, norm Normalized) (Keys, error) {
	subject := strings.TrimSpace(src.Subject)
	if subject == "" {
		subject = strings.TrimSpace(norm.Title)
	}
	if subject == "" {
		return Keys{}, derivationErr("email correspondence: subject or title is required", src, norm)
	}
	return Keys{
		PolicyKey:  PolicyEmailCorrespondent,
		KeyPrimary: strPtr(sha256Hex(strings.ToLower(subject))),
	}, nil
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func strPtr(s string) *string { return &s }
