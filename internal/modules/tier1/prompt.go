package tier1

import (
	"fmt"
	"strings"
)

const (
	// Texts longer than SampleThreshold characters are sent as four windows.
	SampleThreshold = 4000
	WindowChars     = 1000

	PromptModeWhole   = "whole"
	PromptModeSampled = "sampled"
)

const SystemPrompt = `You classify entries of a personal knowledge base.
Answer with one JSON object and nothing else:
{"topic_primary": string, "topic_primary_confidence": number 0..1,
 "topic_secondary": string, "topic_secondary_confidence": number 0..1,
 "keywords": array of 5 to 12 short lowercase strings,
 "gist": one sentence summarizing the entry}
Topics are short noun phrases. Never leave a string field empty.`

// Item is one entry to enrich.
type Item struct {
	Title       string `json:"title,omitempty"`
	Author      string `json:"author,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	CleanText   string `json:"clean_text"`
}

type Prompt struct {
	Mode   string `json:"prompt_mode"`
	System string `json:"-"`
	User   string `json:"prompt"`
}

// BuildPrompt renders the user message for item. Short texts are sent whole;
// long ones as head, two middle windows, and tail.
func BuildPrompt(item Item) Prompt {
	text := strings.TrimSpace(item.CleanText)
	runes := []rune(text)

	var b strings.Builder
	writeHeader(&b, item)

	mode := PromptModeWhole
	if len(runes) <= SampleThreshold {
		b.WriteString("Text:\n")
		b.WriteString(text)
	} else {
		mode = PromptModeSampled
		fmt.Fprintf(&b, "Text (%d characters, sampled):\n", len(runes))
		for _, w := range sampleWindows(runes, WindowChars) {
			fmt.Fprintf(&b, "[%s]\n%s\n", w.label, w.text)
		}
	}
	return Prompt{Mode: mode, System: SystemPrompt, User: strings.TrimRight(b.String(), "\n")}
}

func writeHeader(b *strings.Builder, item Item) {
	if v := strings.TrimSpace(item.Title); v != "" {
		fmt.Fprintf(b, "Title: %s\n", v)
	}
	if v := strings.TrimSpace(item.Author); v != "" {
		fmt.Fprintf(b, "Author: %s\n", v)
	}
	if v := strings.TrimSpace(item.ContentType); v != "" {
		fmt.Fprintf(b, "Content type: %s\n", v)
	}
}

type window struct {
	label string
	text  string
}

// sampleWindows cuts size-rune windows at the start, at one and two thirds,
// and at the end of runes.
func sampleWindows(runes []rune, size int) []window {
	n := len(runes)
	at := func(start int) string {
		if start < 0 {
			start = 0
		}
		if start+size > n {
			start = n - size
		}
		return strings.TrimSpace(string(runes[start : start+size]))
	}
	return []window{
		{label: "head", text: at(0)},
		{label: "mid1", text: at(n/3 - size/2)},
		{label: "mid2", text: at(2*n/3 - size/2)},
		{label: "tail", text: at(n - size)},
	}
}
