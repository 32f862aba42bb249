package curriculum

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/mod/semver"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate performs all structural checks on a content document.
// Returns a combined error describing every problem found, or nil if valid.
func Validate(c *Content) error {
	if c == nil {
		return errors.New("curriculum validation failed: nil content")
	}

	var errs []string

	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if c.Version != "" && !semver.IsValid(c.Version) {
		errs = append(errs, fmt.Sprintf("version %q is not a semantic version (want vMAJOR.MINOR.PATCH)", c.Version))
	}

	if err := c.Path.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	// Steps must be numbered 1..N in order.
	for i, s := range c.Progression {
		if s.StepNumber != i+1 {
			errs = append(errs, fmt.Sprintf("step at position %d has number %d, want %d", i+1, s.StepNumber, i+1))
		}
	}

	// Concept names must be unique so tutor concept tags resolve to one step.
	seen := make(map[string]int, len(c.Progression))
	for _, s := range c.Progression {
		name := normalizeConcept(s.ConceptName)
		if name == "" {
			continue
		}
		if prev, ok := seen[name]; ok {
			errs = append(errs, fmt.Sprintf("concept %q used by steps %d and %d", s.ConceptName, prev, s.StepNumber))
			continue
		}
		seen[name] = s.StepNumber
	}

	if len(errs) > 0 {
		return fmt.Errorf("curriculum validation failed for %s:\n  %s", c.Path, strings.Join(errs, "\n  "))
	}
	return nil
}
