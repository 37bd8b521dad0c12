package tier1

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	t1 "github.com/igasovic/PKM-sub000/internal/domain/tier1"
)

const validAnswer = `{"topic_primary":"cooking","topic_primary_confidence":1.4,"topic_secondary":"baking","topic_secondary_confidence":-0.2,"keywords":["bread","Bread","flour","yeast","oven","dough"],"gist":"How to bake bread."}`

func TestParseResult(t *testing.T) {
	r, err := ParseResult(validAnswer)
	if err != nil {
		t.Fatalf("ParseResult: %v", err)
	}
	if r.TopicPrimary != "cooking" || r.Gist != "How to bake bread." {
		t.Fatalf("unexpected result: %+v", r)
	}
	if *r.TopicPrimaryConfidence != 1 || *r.TopicSecondaryConfidence != 0 {
		t.Fatalf("confidences not clamped: %v %v", *r.TopicPrimaryConfidence, *r.TopicSecondaryConfidence)
	}
	if len(r.Keywords) != 5 || r.Keywords[0] != "bread" {
		t.Fatalf("keywords not deduped: %v", r.Keywords)
	}
}

func TestParseResultFenced(t *testing.T) {
	if _, err := ParseResult("```json\n" + validAnswer + "\n```"); err != nil {
		t.Fatalf("fenced answer: %v", err)
	}
}

func TestParseResultKeywordBounds(t *testing.T) {
	kw := make([]string, 15)
	for i := range kw {
		kw[i] = fmt.Sprintf("%q", fmt.Sprintf("k%d", i))
	}
	body := `{"topic_primary":"a","topic_secondary":"b","gist":"c","keywords":[` + strings.Join(kw, ",") + `]}`
	r, err := ParseResult(body)
	if err != nil {
		t.Fatalf("ParseResult: %v", err)
	}
	if len(r.Keywords) != MaxKeywords {
		t.Fatalf("keywords not clamped: %d", len(r.Keywords))
	}
}

func TestParseResultFailures(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"not json", "sure! here you go", "not a JSON object"},
		{"empty", "  ", "empty response"},
		{"missing topic", `{"topic_secondary":"b","gist":"c","keywords":["a","b","c","d","e"]}`, "topic_primary"},
		{"blank gist", `{"topic_primary":"a","topic_secondary":"b","gist":" ","keywords":["a","b","c","d","e"]}`, "gist"},
		{"keywords not array", `{"topic_primary":"a","topic_secondary":"b","gist":"c","keywords":"a,b"}`, "must be an array"},
		{"too few keywords", `{"topic_primary":"a","topic_secondary":"b","gist":"c","keywords":["a","A","b","c","d"]}`, "at least 5"},
		{"trailing garbage", validAnswer + ` trailing garbage {`, "after JSON object"},
		{"two objects", validAnswer + validAnswer, "after JSON object"},
	}
	for _, tc := range cases {
		_, err := ParseResult(tc.body)
		var ce *ContractError
		if !errors.As(err, &ce) || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected contract error containing %q, got %v", tc.name, tc.want, err)
		}
	}
}

func outputLineJSON(customID string, status int, content string) string {
	body := fmt.Sprintf(`{"choices":[{"message":{"role":"assistant","content":%q}}]}`, content)
	return fmt.Sprintf(`{"id":"req_%s","custom_id":%q,"response":{"status_code":%d,"body":%s},"error":null}`, customID, customID, status, body)
}

func TestParseBatchLines(t *testing.T) {
	content := strings.Join([]string{
		outputLineJSON("entry_1", 200, validAnswer),
		outputLineJSON("entry_2", 200, "{not json"),
		`{"id":"req_3","custom_id":"entry_3","response":{"status_code":500,"body":{"error":{"message":"boom"}}},"error":null}`,
		`{"id":"req_4","custom_id":"entry_4","response":null,"error":{"code":"expired","message":"not processed"}}`,
		`garbage`,
		``,
	}, "\n")
	results, skipped := ParseBatchLines([]byte(content))
	if skipped != 1 {
		t.Fatalf("skipped = %d", skipped)
	}
	want := map[string]string{
		"entry_1": t1.ResultOK,
		"entry_2": t1.ResultParseError,
		"entry_3": t1.ResultError,
		"entry_4": t1.ResultError,
	}
	if len(results) != len(want) {
		t.Fatalf("got %d results", len(results))
	}
	for _, r := range results {
		if want[r.CustomID] != r.Status {
			t.Fatalf("%s: status %s, want %s", r.CustomID, r.Status, want[r.CustomID])
		}
		if len(r.Raw) == 0 {
			t.Fatalf("%s: raw line not kept", r.CustomID)
		}
	}
	if !strings.Contains(string(results[1].Error), "{not json") {
		t.Fatalf("parse_error must carry a preview: %s", results[1].Error)
	}
}

func TestParseErrorPreviewTruncated(t *testing.T) {
	long := strings.Repeat("x", 2*previewChars)
	results, _ := ParseBatchLines([]byte(outputLineJSON("entry_1", 200, long)))
	if len(results) != 1 || results[0].Status != t1.ResultParseError {
		t.Fatalf("unexpected results %+v", results)
	}
	if len(results[0].Error) > previewChars+200 {
		t.Fatalf("preview not truncated: %d bytes", len(results[0].Error))
	}
}

func TestMergeResultsOKWins(t *testing.T) {
	out := []t1.BatchItemResult{{CustomID: "b", Status: t1.ResultParseError}, {CustomID: "a", Status: t1.ResultError}}
	errs := []t1.BatchItemResult{{CustomID: "a", Status: t1.ResultOK}, {CustomID: "b", Status: t1.ResultError}, {CustomID: "c", Status: t1.ResultError}}
	merged := MergeResults(out, errs)
	got := map[string]string{}
	for _, r := range merged {
		got[r.CustomID] = r.Status
	}
	if len(merged) != 3 || merged[0].CustomID != "a" {
		t.Fatalf("unexpected merge order: %+v", merged)
	}
	if got["a"] != t1.ResultOK || got["b"] != t1.ResultParseError || got["c"] != t1.ResultError {
		t.Fatalf("unexpected merge: %v", got)
	}
}

func TestEntryCustomID(t *testing.T) {
	if EntryCustomID(42) != "entry_42" {
		t.Fatalf("EntryCustomID")
	}
	if id, ok := ParseEntryCustomID("entry_42"); !ok || id != 42 {
		t.Fatalf("ParseEntryCustomID = %d, %v", id, ok)
	}
	for _, bad := range []string{"item_1", "entry_", "entry_x", "entry_-3"} {
		if _, ok := ParseEntryCustomID(bad); ok {
			t.Fatalf("%q must not parse", bad)
		}
	}
}
