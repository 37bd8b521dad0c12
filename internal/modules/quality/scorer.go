package quality

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/igasovic/PKM-sub000/internal/domain/capture"
)

const (
	DefaultMinWords     = 30
	DefaultExcerptChars = 320
)

// Signals are the persisted quality columns of an entry.
type Signals struct {
	RetrievalExcerpt string  `json:"retrieval_excerpt"`
	QualityScore     float64 `json:"quality_score"`
	LowSignal        bool    `json:"low_signal"`
	BoilerplateHeavy bool    `json:"boilerplate_heavy"`
	CleanWordCount   int     `json:"clean_word_count"`
}

type Scorer interface {
	Score(cleanText string) Signals
}

type Config struct {
	MinWords     int
	ExcerptChars int
}

type scorer struct {
	minWords     int
	excerptChars int
}

func NewScorer(cfg Config) Scorer {
	s := &scorer{minWords: cfg.MinWords, excerptChars: cfg.ExcerptChars}
	if s.minWords <= 0 {
		s.minWords = DefaultMinWords
	}
	if s.excerptChars <= 0 {
		s.excerptChars = DefaultExcerptChars
	}
	return s
}

var boilerplateRe = regexp.MustCompile(`(?i)(unsubscribe|view (this|it) in (your )?browser|privacy policy|all rights reserved|manage (your )?preferences|©|copyright \d{4}|sent from my)`)

func (s *scorer) Score(cleanText string) Signals {
	text := strings.TrimSpace(cleanText)
	words := len(strings.Fields(text))
	boiler := boilerplateRatio(text)

	out := Signals{
		RetrievalExcerpt: Excerpt(text, s.excerptChars),
		CleanWordCount:   words,
		LowSignal:        words < s.minWords,
		BoilerplateHeavy: boiler >= 0.3,
	}
	// Length saturates at ten times the minimum; boilerplate costs up to half.
	length := math.Min(1, float64(words)/float64(s.minWords*10))
	score := length * (1 - 0.5*boiler)
	out.QualityScore = math.Round(score*1000) / 1000
	return out
}

func boilerplateRatio(text string) float64 {
	var total, hits int
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		total++
		if boilerplateRe.MatchString(line) {
			hits++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Excerpt collapses whitespace and cuts text to at most max runes, backing
// off to the last word boundary.
func Excerpt(text string, max int) string {
	flat := strings.Join(strings.Fields(text), " ")
	if max <= 0 || utf8.RuneCountInString(flat) <= max {
		return flat
	}
	runes := []rune(flat)
	cut := string(runes[:max])
	if i := strings.LastIndex(cut, " "); i > max/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}

// Apply copies s into the payload's quality columns.
func Apply(p *capture.EntryPayload, s Signals) {
	if p == nil {
		return
	}
	p.RetrievalExcerpt = &s.RetrievalExcerpt
	p.QualityScore = &s.QualityScore
	p.LowSignal = &s.LowSignal
	p.BoilerplateHeavy = &s.BoilerplateHeavy
	p.CleanWordCount = &s.CleanWordCount
}
