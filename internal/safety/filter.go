// Package safety cleans free-text student input before it reaches the
// model or the session log.
package safety

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxRunes bounds a sanitized message.
const DefaultMaxRunes = 1000

// Filter sanitizes student input.
type Filter interface {
	Sanitize(text string) string
}

// Options configures a TextFilter.
type Options struct {
	// MaxRunes truncates longer input. Zero means DefaultMaxRunes.
	MaxRunes int `yaml:"max_runes"`

	// RedactContacts masks email addresses and phone numbers.
	RedactContacts bool `yaml:"redact_contacts"`
}

// TextFilter is the default Filter. It normalizes Unicode and quotes, strips
// HTML elements and control characters, collapses whitespace, optionally
// masks contact details, and truncates. Comparisons such as "x<y and y>z"
// are left alone.
type TextFilter struct {
	maxRunes int
	redact   bool
}

var (
	// An element name followed only by name=value attributes.
	tagPattern   = regexp.MustCompile(`(?i)<(/?)([a-z][a-z0-9]*)((?:\s+[a-z][a-z0-9-]*\s*=\s*(?:"[^"<>]*"|'[^'<>]*'|[^\s"'<>]+))*)\s*/?>`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	// Seven or more digits with optional separators; short numbers are maths.
	phonePattern = regexp.MustCompile(`\+?\d[\d\s\-().]{5,}\d`)
	spacePattern = regexp.MustCompile(`[ \t]+`)
	blankLines   = regexp.MustCompile(`\n{3,}`)

	quotes = strings.NewReplacer(
		"\u2018", "'", "\u2019", "'", "\u02bc", "'",
		"\u201c", `"`, "\u201d", `"`,
	)
)

// Void elements are removed wherever they appear. Other elements are
// removed only as an open/close pair, so a lone "<b>" in "a<b>c" stays.
var (
	voidElements = setOf("area", "base", "br", "col", "embed", "hr", "img", "input", "link", "meta", "param", "source", "track", "wbr")

	pairedElements = setOf(
		"a", "abbr", "article", "audio", "b", "big", "blockquote", "body", "button", "canvas", "center",
		"code", "del", "details", "div", "em", "font", "footer", "form", "h1", "h2", "h3", "h4", "h5",
		"h6", "head", "header", "html", "i", "iframe", "ins", "label", "li", "main", "mark", "nav",
		"object", "ol", "option", "p", "pre", "q", "s", "script", "section", "select", "small", "span",
		"strike", "strong", "style", "sub", "summary", "sup", "svg", "table", "tbody", "td", "textarea",
		"tfoot", "th", "thead", "title", "tr", "tt", "u", "ul", "video",
	)
)

func setOf(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// NewTextFilter returns a TextFilter for opts.
func NewTextFilter(opts Options) *TextFilter {
	if opts.MaxRunes <= 0 {
		opts.MaxRunes = DefaultMaxRunes
	}
	return &TextFilter{maxRunes: opts.MaxRunes, redact: opts.RedactContacts}
}

// Sanitize implements Filter.
func (f *TextFilter) Sanitize(text string) string {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	text = norm.NFKC.String(text)
	text = quotes.Replace(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = stripElements(text)
	text = strings.Map(dropControl, text)

	if f.redact {
		text = emailPattern.ReplaceAllString(text, "[email]")
		text = phonePattern.ReplaceAllStringFunc(text, maskPhone)
	}

	text = spacePattern.ReplaceAllString(text, " ")
	text = blankLines.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	return truncate(text, f.maxRunes)
}

type tagMatch struct {
	start, end int
	name       string
	closing    bool
}

// stripElements removes known HTML tags: void elements anywhere, other
// elements only when an opening tag is matched by a later closing tag.
func stripElements(text string) string {
	var tags []tagMatch
	for _, m := range tagPattern.FindAllStringSubmatchIndex(text, -1) {
		name := strings.ToLower(text[m[4]:m[5]])
		if !voidElements[name] && !pairedElements[name] {
			continue
		}
		tags = append(tags, tagMatch{start: m[0], end: m[1], name: name, closing: m[3] > m[2]})
	}
	if len(tags) == 0 {
		return text
	}

	drop := make([]bool, len(tags))
	open := make(map[string][]int)
	for i, t := range tags {
		switch {
		case voidElements[t.name]:
			drop[i] = true
		case !t.closing:
			open[t.name] = append(open[t.name], i)
		default:
			if stack := open[t.name]; len(stack) > 0 {
				drop[stack[len(stack)-1]] = true
				drop[i] = true
				open[t.name] = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	last := 0
	for i, t := range tags {
		if drop[i] {
			b.WriteString(text[last:t.start])
			last = t.end
		}
	}
	b.WriteString(text[last:])
	return b.String()
}

func dropControl(r rune) rune {
	switch {
	case r == '\n' || r == '\t':
		return r
	case r == '\r':
		return '\n'
	case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
		return -1
	}
	return r
}

// maskPhone keeps numbers with fewer than seven digits, which are far more
// likely to be arithmetic than a phone number.
func maskPhone(s string) string {
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 7 {
		return s
	}
	return "[phone]"
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}

// Nop returns input unchanged. Useful for tests that assert on raw text.
type Nop struct{}

func (Nop) Sanitize(text string) string { return text }
