package safety

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTextFilter_Sanitize(t *testing.T) {
	f := NewTextFilter(Options{})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "3/4 divided by 2 is 3/8", "3/4 divided by 2 is 3/8"},
		{"trims and collapses", "  I   think\t\tit's  6  ", "I think it's 6"},
		{"strips tags", "<b>six</b><script>alert(1)</script>", "sixalert(1)"},
		{"keeps comparison signs", "3 < 4 and 5 > 2", "3 < 4 and 5 > 2"},
		{"keeps inequalities between letters", "x<y and y>z so x<z", "x<y and y>z so x<z"},
		{"keeps mixed inequalities", "is 2<a and b>3?", "is 2<a and b>3?"},
		{"keeps lone element-like comparison", "a<b>c", "a<b>c"},
		{"strips paired tags with attributes", `<span class="x">half</span> of <i>8</i>`, "half of 8"},
		{"strips void tags", "one<br/>two<img src=x onerror=alert(1)>", "onetwo"},
		{"folds curly quotes", "I don\u2019t know \u201cwhy\u201d", `I don't know "why"`},
		{"drops control chars", "one\x00two\u200bthree", "onetwothree"},
		{"normalizes full width digits", "１２", "12"},
		{"collapses blank lines", "a\r\n\r\n\r\n\r\nb", "a\n\nb"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTextFilter_Truncates(t *testing.T) {
	f := NewTextFilter(Options{MaxRunes: 5})
	if got := f.Sanitize("ééééééééé"); got != "ééééé" {
		t.Errorf("got %q", got)
	}

	long := strings.Repeat("a", DefaultMaxRunes+50)
	if got := NewTextFilter(Options{}).Sanitize(long); utf8.RuneCountInString(got) != DefaultMaxRunes {
		t.Errorf("default truncation: got %d runes", utf8.RuneCountInString(got))
	}
}

func TestTextFilter_RedactContacts(t *testing.T) {
	f := NewTextFilter(Options{RedactContacts: true})

	tests := []struct {
		in   string
		want string
	}{
		{"mail me at kid@example.com", "mail me at [email]"},
		{"call 9123 4567 please", "call [phone] please"},
		{"12 x 34 = 408", "12 x 34 = 408"},
		{"the answer is 1,250", "the answer is 1,250"},
	}
	for _, tt := range tests {
		if got := f.Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if got := NewTextFilter(Options{}).Sanitize("kid@example.com"); got != "kid@example.com" {
		t.Errorf("redaction should be opt-in, got %q", got)
	}
}

func TestNop(t *testing.T) {
	var f Filter = Nop{}
	if got := f.Sanitize("  raw <b> "); got != "  raw <b> " {
		t.Errorf("Nop changed input: %q", got)
	}
}
