package curriculum

import (
	"fmt"
	"regexp"
	"strings"
)

// KeySeparator joins path fields inside a TopicKey.
const KeySeparator = "_"

// Defaults used when a flat key is too short to carry grade and subject.
const (
	DefaultGrade   = "p6"
	DefaultSubject = "math"
)

// Path identifies a subtopic in the curriculum tree.
type Path struct {
	Grade    string `json:"grade" yaml:"grade" validate:"required"`
	Subject  string `json:"subject" yaml:"subject" validate:"required"`
	Topic    string `json:"topic" yaml:"topic" validate:"required"`
	Subtopic string `json:"subtopic" yaml:"subtopic" validate:"required"`
}

// TopicKey is the flat index form of a Path.
type TopicKey string

func (k TopicKey) String() string { return string(k) }

var (
	tokenRe    = regexp.MustCompile(`^[a-z0-9]+$`)
	subtopicRe = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

// Validate checks that the path is made of identifiers the codec can
// round-trip: single tokens for grade, subject and topic, and a hyphenated
// slug for the subtopic.
func (p Path) Validate() error {
	var errs []string
	for _, f := range []struct{ name, val string }{
		{"grade", p.Grade},
		{"subject", p.Subject},
		{"topic", p.Topic},
	} {
		if !tokenRe.MatchString(f.val) {
			errs = append(errs, fmt.Sprintf("%s %q must match [a-z0-9]+", f.name, f.val))
		}
	}
	if !subtopicRe.MatchString(p.Subtopic) {
		errs = append(errs, fmt.Sprintf("subtopic %q must be a lower-case hyphenated slug", p.Subtopic))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid curriculum path: %s", strings.Join(errs, "; "))
	}
	return nil
}

// IsZero reports whether no field is set.
func (p Path) IsZero() bool {
	return p == Path{}
}

func (p Path) String() string {
	return strings.Join([]string{p.Grade, p.Subject, p.Topic, p.Subtopic}, "/")
}

// PathToKey flattens a path into a TopicKey. Fields are trimmed and
// lower-cased and internal hyphens become the separator.
func PathToKey(p Path) TopicKey {
	parts := []string{
		normalizeField(p.Grade),
		normalizeField(p.Subject),
		normalizeField(p.Topic),
		normalizeField(p.Subtopic),
	}
	return TopicKey(strings.Join(parts, KeySeparator))
}

func normalizeField(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "-", KeySeparator)
}

// KeyToPath reconstructs a Path from a flat key.
//
// Keys produced by PathToKey from a valid Path round-trip exactly. Anything
// else is parsed best-effort: keys with fewer than four fields get the
// default grade and subject, and the remainder is read as topic + subtopic.
// Callers must not rely on exact inversion for externally supplied keys.
func KeyToPath(key TopicKey) Path {
	raw := strings.ToLower(strings.TrimSpace(string(key)))
	raw = strings.ReplaceAll(raw, "-", KeySeparator)

	var parts []string
	for _, p := range strings.Split(raw, KeySeparator) {
		if p != "" {
			parts = append(parts, p)
		}
	}

	switch {
	case len(parts) >= 4:
		return Path{
			Grade:    parts[0],
			Subject:  parts[1],
			Topic:    parts[2],
			Subtopic: strings.Join(parts[3:], "-"),
		}
	case len(parts) == 0:
		return Path{Grade: DefaultGrade, Subject: DefaultSubject}
	case len(parts) == 1:
		return Path{
			Grade:    DefaultGrade,
			Subject:  DefaultSubject,
			Topic:    parts[0],
			Subtopic: parts[0],
		}
	default:
		return Path{
			Grade:    DefaultGrade,
			Subject:  DefaultSubject,
			Topic:    parts[0],
			Subtopic: strings.Join(parts[1:], "-"),
		}
	}
}
