// Package policy decides how much scaffolding the tutor gives: it detects
// frustration from the student's message and recent turns, and moves the
// hint level up or down based on the model's judgment of the last answer.
package policy

import (
	"strings"
	"unicode/utf8"

	"github.com/fpachisa/TutorAI-sub000/internal/session"
)

// DefaultKeywords are phrases that mark a message as frustrated.
var DefaultKeywords = []string{
	"i don't know",
	"i dont know",
	"idk",
	"i'm stuck",
	"im stuck",
	"stuck",
	"confused",
	"i give up",
	"this is hard",
	"too hard",
	"i hate",
	"whatever",
	"don't get it",
	"dont get it",
	"makes no sense",
}

// apostrophes folds the typographic quotes phone keyboards insert.
var apostrophes = strings.NewReplacer("\u2019", "'", "\u2018", "'", "\u02bc", "'")

// Config holds the frustration and hint thresholds.
type Config struct {
	Keywords []string `yaml:"keywords"`

	// FrustratedTurnsLimit flags every turn once the session has this many
	// frustrated turns on record.
	FrustratedTurnsLimit int `yaml:"frustrated_turns_limit"`

	// A message shorter than ShortMessageLen counts toward disengagement
	// when at least ShortHistoryMin of the last ShortHistoryWindow turns had
	// student messages shorter than ShortHistoryLen.
	ShortMessageLen    int `yaml:"short_message_len"`
	ShortHistoryLen    int `yaml:"short_history_len"`
	ShortHistoryWindow int `yaml:"short_history_window"`
	ShortHistoryMin    int `yaml:"short_history_min"`

	// EscalationWindow is how many prior turns must all show struggle for
	// an incorrect answer to jump the hint level by two.
	EscalationWindow int `yaml:"escalation_window"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		Keywords:             DefaultKeywords,
		FrustratedTurnsLimit: 2,
		ShortMessageLen:      5,
		ShortHistoryLen:      10,
		ShortHistoryWindow:   3,
		ShortHistoryMin:      2,
		EscalationWindow:     2,
	}
}

// Engine applies a Config. The zero value is not usable; use New.
type Engine struct {
	cfg      Config
	keywords []string
}

// New returns an Engine, filling unset thresholds from DefaultConfig.
func New(cfg Config) *Engine {
	def := DefaultConfig()
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = def.Keywords
	}
	setDefault(&cfg.FrustratedTurnsLimit, def.FrustratedTurnsLimit)
	setDefault(&cfg.ShortMessageLen, def.ShortMessageLen)
	setDefault(&cfg.ShortHistoryLen, def.ShortHistoryLen)
	setDefault(&cfg.ShortHistoryWindow, def.ShortHistoryWindow)
	setDefault(&cfg.ShortHistoryMin, def.ShortHistoryMin)
	setDefault(&cfg.EscalationWindow, def.EscalationWindow)

	kw := make([]string, 0, len(cfg.Keywords))
	for _, k := range cfg.Keywords {
		if k = normalize(k); k != "" {
			kw = append(kw, k)
		}
	}
	return &Engine{cfg: cfg, keywords: kw}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// DetectFrustration reports whether the student appears frustrated or
// disengaged: the session already has enough frustrated turns, the message
// contains a frustration phrase, or a very short message follows a run of
// short replies.
func (e *Engine) DetectFrustration(s *session.TutorSession, message string) bool {
	if s.FrustratedTurns >= e.cfg.FrustratedTurnsLimit {
		return true
	}
	if e.MatchKeyword(message) != "" {
		return true
	}

	if utf8.RuneCountInString(strings.TrimSpace(message)) >= e.cfg.ShortMessageLen {
		return false
	}
	// The opening turn has no student message and says nothing about
	// engagement.
	short := 0
	for _, t := range s.LastTurns(e.cfg.ShortHistoryWindow) {
		n := utf8.RuneCountInString(strings.TrimSpace(t.StudentMessage))
		if n > 0 && n < e.cfg.ShortHistoryLen {
			short++
		}
	}
	return short >= e.cfg.ShortHistoryMin
}

// MatchKeyword returns the first frustration phrase found in message, or "".
func (e *Engine) MatchKeyword(message string) string {
	lower := normalize(message)
	for _, k := range e.keywords {
		if containsPhrase(lower, k) {
			return k
		}
	}
	return ""
}

// NextHintLevel is the authoritative hint level after the model judged the
// student's answer. A correct answer fades support by one level. An
// incorrect one raises it by two when every recent turn already showed
// struggle, otherwise by one. The result is always within bounds.
func (e *Engine) NextHintLevel(s *session.TutorSession, correct bool) int {
	level := clampHint(s.CurrentHintLevel)
	if correct {
		return clampHint(level - 1)
	}

	recent := s.LastTurns(e.cfg.EscalationWindow)
	struggling := len(recent) == e.cfg.EscalationWindow
	for _, t := range recent {
		if !t.StudentFrustrated && t.HintLevel == 0 {
			struggling = false
			break
		}
	}
	if struggling {
		return clampHint(level + 2)
	}
	return clampHint(level + 1)
}

// ProvisionalHintLevel estimates the hint level before the model has
// judged anything, so the prompt can already offer more help to a
// frustrated student.
func (e *Engine) ProvisionalHintLevel(s *session.TutorSession, frustrated bool) int {
	level := clampHint(s.CurrentHintLevel)
	if frustrated {
		return clampHint(level + 1)
	}
	return level
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(apostrophes.Replace(s)))
}

func clampHint(level int) int {
	return max(session.MinHintLevel, min(session.MaxHintLevel, level))
}

// containsPhrase matches k in s on word boundaries so "idk" does not fire
// inside "kidkit" and "stuck" still fires in "i'm so stuck!".
func containsPhrase(s, k string) bool {
	for from := 0; ; {
		i := strings.Index(s[from:], k)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(k)
		if boundary(s, start-1) && boundary(s, end) {
			return true
		}
		from = start + 1
	}
}

func boundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9')
}

func setDefault(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

var defaultEngine = New(DefaultConfig())

// DetectFrustration applies the default thresholds.
func DetectFrustration(s *session.TutorSession, message string) bool {
	return defaultEngine.DetectFrustration(s, message)
}

// NextHintLevel applies the default thresholds.
func NextHintLevel(s *session.TutorSession, correct bool) int {
	return defaultEngine.NextHintLevel(s, correct)
}

// ProvisionalHintLevel applies the default thresholds.
func ProvisionalHintLevel(s *session.TutorSession, frustrated bool) int {
	return defaultEngine.ProvisionalHintLevel(s, frustrated)
}
