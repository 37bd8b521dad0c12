package idempotency

// Source describes where a capture came from.
type Source struct {
	System    string `json:"system"`
	ChatID    string `json:"chat_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	FromAddr  string `json:"from_addr,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Date      string `json:"date,omitempty"`
}

// Normalized is the subset of the normalized capture that keying reads.
type Normalized struct {
	ContentType  string `json:"content_type"`
	CleanText    string `json:"clean_text,omitempty"`
	CaptureText  string `json:"capture_text,omitempty"`
	URLCanonical string `json:"url_canonical,omitempty"`
	Title        string `json:"title,omitempty"`
}

// Keys is the derived identity of a capture.
type Keys struct {
	PolicyKey    string  `json:"policy_key"`
	KeyPrimary   *string `json:"key_primary"`
	KeySecondary *string `json:"key_secondary"`
}

// Policy keys.
const (
	PolicyTelegramLink       = "telegram_link_v1"
	PolicyTelegramThought    = "telegram_thought_v1"
	PolicyEmailNewsletter    = "email_newsletter_v1"
	PolicyEmailCorrespondent = "email_correspondence_thread_v1"
)
