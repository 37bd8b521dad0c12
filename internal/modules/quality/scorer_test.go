package quality

import (
	"strings"
	"testing"

	"github.com/igasovic/PKM-sub000/internal/domain/capture"
)

func TestScoreShortText(t *testing.T) {
	s := NewScorer(Config{}).Score("Buy milk")
	if !s.LowSignal || s.CleanWordCount != 2 {
		t.Fatalf("unexpected signals: %+v", s)
	}
	if s.RetrievalExcerpt != "Buy milk" {
		t.Fatalf("excerpt = %q", s.RetrievalExcerpt)
	}
	if s.QualityScore <= 0 || s.QualityScore >= 0.1 {
		t.Fatalf("score = %v", s.QualityScore)
	}
}

func TestScoreLongText(t *testing.T) {
	text := strings.Repeat("signal ", 400)
	s := NewScorer(Config{MinWords: 30, ExcerptChars: 50}).Score(text)
	if s.LowSignal || s.QualityScore != 1 {
		t.Fatalf("unexpected signals: %+v", s)
	}
	if len([]rune(s.RetrievalExcerpt)) > 51 {
		t.Fatalf("excerpt too long: %q", s.RetrievalExcerpt)
	}
}

func TestScoreBoilerplate(t *testing.T) {
	text := "Real content line\nUnsubscribe here\nView this in your browser\n© 2024 Corp"
	s := NewScorer(Config{}).Score(text)
	if !s.BoilerplateHeavy {
		t.Fatalf("expected boilerplate heavy: %+v", s)
	}
}

func TestExcerpt(t *testing.T) {
	if got := Excerpt("  a   b\n c ", 100); got != "a b c" {
		t.Fatalf("Excerpt = %q", got)
	}
	if got := Excerpt("alpha beta gamma delta", 13); got != "alpha beta…" {
		t.Fatalf("Excerpt = %q", got)
	}
}

func TestApply(t *testing.T) {
	p := &capture.EntryPayload{}
	Apply(p, Signals{RetrievalExcerpt: "x", QualityScore: 0.5, CleanWordCount: 1, LowSignal: true})
	if p.RetrievalExcerpt == nil || *p.QualityScore != 0.5 || !*p.LowSignal || *p.CleanWordCount != 1 {
		t.Fatalf("Apply did not copy signals: %+v", p)
	}
}
