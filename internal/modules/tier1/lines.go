package tier1

import (
	"bufio"
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"gorm.io/datatypes"

	t1 "github.com/igasovic/PKM-sub000/internal/domain/tier1"
)

// outputLine is one line of a batch output or error file.
type outputLine struct {
	ID       string `json:"id"`
	CustomID string `json:"custom_id"`
	Response *struct {
		StatusCode int             `json:"status_code"`
		RequestID  string          `json:"request_id"`
		Body       json.RawMessage `json:"body"`
	} `json:"response"`
	Error json.RawMessage `json:"error"`
}

type completionBody struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ParseBatchLines maps each JSONL line to a per-item result. Lines that are
// not JSON or carry no custom_id cannot be attributed and are counted as
// skipped.
func ParseBatchLines(content []byte) (results []t1.BatchItemResult, skipped int) {
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var line outputLine
		if err := json.Unmarshal(raw, &line); err != nil || strings.TrimSpace(line.CustomID) == "" {
			skipped++
			continue
		}
		results = append(results, resultFromLine(line, append([]byte(nil), raw...)))
	}
	return results, skipped
}

func resultFromLine(line outputLine, raw []byte) t1.BatchItemResult {
	res := t1.BatchItemResult{
		CustomID: strings.TrimSpace(line.CustomID),
		Raw:      datatypes.JSON(raw),
	}

	resp := line.Response
	if resp == nil || resp.StatusCode < 200 || resp.StatusCode > 299 || isEmptyJSON(resp.Body) {
		res.Status = t1.ResultError
		res.Error = lineError(line)
		return res
	}

	var body completionBody
	if err := json.Unmarshal(resp.Body, &body); err != nil || len(body.Choices) == 0 {
		res.Status = t1.ResultParseError
		res.Error = toJSON(map[string]any{"message": "response body has no choices", "preview": preview(string(resp.Body))})
		return res
	}
	text := body.Choices[0].Message.Content
	res.ResponseText = &text

	parsed, err := ParseResult(text)
	if err != nil {
		res.Status = t1.ResultParseError
		res.Error = toJSON(map[string]any{"message": err.Error(), "preview": preview(text)})
		return res
	}
	res.Status = t1.ResultOK
	res.Parsed = toJSON(parsed)
	return res
}

func lineError(line outputLine) datatypes.JSON {
	out := map[string]any{}
	if !isEmptyJSON(line.Error) {
		var v any
		if json.Unmarshal(line.Error, &v) == nil {
			out["error"] = v
		}
	}
	if line.Response != nil {
		out["status_code"] = line.Response.StatusCode
		if !isEmptyJSON(line.Response.Body) {
			out["preview"] = preview(string(line.Response.Body))
		}
	} else {
		out["message"] = "missing response"
	}
	return toJSON(out)
}

func toJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func isEmptyJSON(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// MergeResults folds result sets by custom_id. An ok result replaces any
// other status; otherwise the first one seen is kept. Output is sorted by
// custom_id.
func MergeResults(sets ...[]t1.BatchItemResult) []t1.BatchItemResult {
	byID := map[string]t1.BatchItemResult{}
	for _, set := range sets {
		for _, r := range set {
			prev, ok := byID[r.CustomID]
			if !ok || (r.Status == t1.ResultOK && prev.Status != t1.ResultOK) {
				byID[r.CustomID] = r
			}
		}
	}
	out := make([]t1.BatchItemResult, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomID < out[j].CustomID })
	return out
}
