package tier1

import (
	"encoding/json"
	"io"
	"strings"
)

const (
	MinKeywords = 5
	MaxKeywords = 12

	previewChars = 500
)

// Result is a validated Tier-1 classification.
type Result struct {
	TopicPrimary             string   `json:"topic_primary"`
	TopicPrimaryConfidence   *float64 `json:"topic_primary_confidence,omitempty"`
	TopicSecondary           string   `json:"topic_secondary"`
	TopicSecondaryConfidence *float64 `json:"topic_secondary_confidence,omitempty"`
	Keywords                 []string `json:"keywords"`
	Gist                     string   `json:"gist"`
}

type rawResult struct {
	TopicPrimary             any             `json:"topic_primary"`
	TopicPrimaryConfidence   *float64        `json:"topic_primary_confidence"`
	TopicSecondary           any             `json:"topic_secondary"`
	TopicSecondaryConfidence *float64        `json:"topic_secondary_confidence"`
	Keywords                 json.RawMessage `json:"keywords"`
	Gist                     any             `json:"gist"`
}

// ParseResult enforces the response contract on a model answer.
func ParseResult(text string) (*Result, error) {
	body := stripFences(text)
	if body == "" {
		return nil, contractErr("empty response")
	}
	var raw rawResult
	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&raw); err != nil {
		return nil, contractErr("response is not a JSON object: " + err.Error())
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, contractErr("unexpected content after JSON object")
	}

	out := &Result{}
	var err error
	if out.TopicPrimary, err = requiredString("topic_primary", raw.TopicPrimary); err != nil {
		return nil, err
	}
	if out.TopicSecondary, err = requiredString("topic_secondary", raw.TopicSecondary); err != nil {
		return nil, err
	}
	if out.Gist, err = requiredString("gist", raw.Gist); err != nil {
		return nil, err
	}
	if out.Keywords, err = keywords(raw.Keywords); err != nil {
		return nil, err
	}
	out.TopicPrimaryConfidence = clamp01(raw.TopicPrimaryConfidence)
	out.TopicSecondaryConfidence = clamp01(raw.TopicSecondaryConfidence)
	return out, nil
}

func requiredString(field string, v any) (string, error) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", contractErr(field + " must be a non-empty string")
	}
	return strings.TrimSpace(s), nil
}

// keywords dedupes case-insensitively, keeps first-seen order, and cuts the
// list at MaxKeywords.
func keywords(raw json.RawMessage) ([]string, error) {
	var items []any
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return nil, contractErr("keywords must be an array")
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	if len(out) < MinKeywords {
		return nil, contractErr("keywords must contain at least 5 distinct entries")
	}
	if len(out) > MaxKeywords {
		out = out[:MaxKeywords]
	}
	return out, nil
}

func clamp01(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return &c
}

// stripFences removes a surrounding markdown code fence if the model added one.
func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewChars {
		return s
	}
	return string(r[:previewChars]) + "…"
}
