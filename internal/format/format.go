// Package format turns the small markdown subset the persona writes
// (### headings, **bold**, "- "/"* " list lines) into display lines.
package format

import (
	"regexp"
	"strings"
)

const headingPrefix = "### "

var boldRe = regexp.MustCompile(`\*\*(.*?)\*\*`)

type Kind int

const (
	KindText Kind = iota
	KindHeading
)

type Span struct {
	Text string
	Bold bool
}

type Line struct {
	Kind     Kind
	Indented bool
	Spans    []Span
}

// Text concatenates the line's spans.
func (l Line) Text() string {
	var b strings.Builder
	for _, s := range l.Spans {
		b.WriteString(s.Text)
	}
	return b.String()
}

// Format splits text on newlines and classifies each line on its own.
// A trailing carriage return is dropped from every line.
func Format(text string) []Line {
	raw := strings.Split(text, "\n")
	lines := make([]Line, 0, len(raw))
	for _, ln := range raw {
		lines = append(lines, formatLine(strings.TrimSuffix(ln, "\r")))
	}
	return lines
}

func formatLine(ln string) Line {
	if strings.HasPrefix(ln, headingPrefix) {
		return Line{
			Kind:  KindHeading,
			Spans: []Span{{Text: strings.TrimPrefix(ln, headingPrefix)}},
		}
	}
	return Line{
		Kind:     KindText,
		Indented: strings.HasPrefix(ln, "- ") || strings.HasPrefix(ln, "* "),
		Spans:    splitBold(ln),
	}
}

func splitBold(ln string) []Span {
	var spans []Span
	last := 0
	for _, loc := range boldRe.FindAllStringSubmatchIndex(ln, -1) {
		if loc[0] > last {
			spans = append(spans, Span{Text: ln[last:loc[0]]})
		}
		if inner := ln[loc[2]:loc[3]]; inner != "" {
			spans = append(spans, Span{Text: inner, Bold: true})
		}
		last = loc[1]
	}
	if last < len(ln) {
		spans = append(spans, Span{Text: ln[last:]})
	}
	return spans
}
