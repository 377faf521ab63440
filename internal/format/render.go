package format

import (
	"html"
	"html/template"
	"strings"
	"unicode/utf8"

	"meowpedia/internal/llm"
)

// RenderHTML renders lines for the web page. All text is escaped.
func RenderHTML(lines []Line) template.HTML {
	var b strings.Builder
	for _, l := range lines {
		if l.Kind == KindHeading {
			b.WriteString(`<div class="line"><h3 class="heading">`)
			b.WriteString(template.HTMLEscapeString(l.Text()))
			b.WriteString("</h3></div>")
			continue
		}
		if l.Indented {
			b.WriteString(`<div class="line pl-4">`)
		} else {
			b.WriteString(`<div class="line">`)
		}
		for _, s := range l.Spans {
			if s.Bold {
				b.WriteString(`<strong>`)
				b.WriteString(template.HTMLEscapeString(s.Text))
				b.WriteString(`</strong>`)
				continue
			}
			b.WriteString(`<span>`)
			b.WriteString(template.HTMLEscapeString(s.Text))
			b.WriteString(`</span>`)
		}
		b.WriteString("</div>")
	}
	return template.HTML(b.String())
}

// telegram drops leading ASCII spaces, so indentation uses no-break spaces
const telegramIndent = "  "

// RenderTelegram renders lines for Telegram's HTML parse mode.
func RenderTelegram(lines []Line) string {
	return strings.Join(RenderTelegramLines(lines, 0), "\n")
}

// RenderTelegramLines renders each line for Telegram's HTML parse mode. With a
// positive limit, a line whose markup would exceed limit runes is broken into
// several, each with balanced tags and whole entities. Zero means no limit.
func RenderTelegramLines(lines []Line, limit int) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, renderTelegramLine(l, limit)...)
	}
	return out
}

func renderTelegramLine(l Line, limit int) []string {
	spans := l.Spans
	prefix := ""
	switch {
	case l.Kind == KindHeading:
		spans = []Span{{Text: l.Text(), Bold: true}}
	case l.Indented:
		prefix = telegramIndent
	}

	var (
		out []string
		b   strings.Builder
	)
	b.WriteString(prefix)
	n := utf8.RuneCountInString(prefix)
	for _, s := range spans {
		openTag, closeTag := "", ""
		if s.Bold {
			openTag, closeTag = "<b>", "</b>"
		}
		inSpan := false
		for _, r := range s.Text {
			esc := html.EscapeString(string(r))
			need := utf8.RuneCountInString(esc) + len(closeTag)
			if !inSpan {
				need += len(openTag)
			}
			if limit > 0 && n > 0 && n+need > limit {
				if inSpan {
					b.WriteString(closeTag)
				}
				out = append(out, b.String())
				b.Reset()
				n, inSpan = 0, false
			}
			if !inSpan {
				b.WriteString(openTag)
				n += len(openTag)
				inSpan = true
			}
			b.WriteString(esc)
			n += utf8.RuneCountInString(esc)
		}
		if inSpan {
			b.WriteString(closeTag)
			n += len(closeTag)
		}
	}
	return append(out, b.String())
}

const CitationsHeading = "🔎 参考资料 (来源):"

// TelegramCitations renders citations as a link block, empty when there are none.
func TelegramCitations(cs []llm.Citation) string {
	if len(cs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(CitationsHeading)
	for _, c := range cs {
		b.WriteString("\n🔗 <a href=\"")
		b.WriteString(html.EscapeString(c.URI))
		b.WriteString("\">")
		b.WriteString(html.EscapeString(c.Title))
		b.WriteString("</a>")
	}
	return b.String()
}
