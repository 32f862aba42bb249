package curriculum

import "strings"

// MasteryStep is one concept in a subtopic's ordered mastery progression.
type MasteryStep struct {
	StepNumber        int    `json:"step" yaml:"step" validate:"gte=1"`
	ConceptName       string `json:"concept" yaml:"concept" validate:"required"`
	SampleQuestion    string `json:"sample_question" yaml:"sample_question"`
	RequiredQuestions int    `json:"required_questions" yaml:"required_questions" validate:"gte=1"`
	MasteryCriteria   string `json:"mastery_criteria" yaml:"mastery_criteria"`
}

// CompletionPolicy decides when a subtopic session is finished.
// With neither criterion set the topic never completes on its own.
type CompletionPolicy struct {
	RequiresAllSteps        bool `json:"requires_all_steps" yaml:"requires_all_steps"`
	TotalQuestionsThreshold *int `json:"total_questions_threshold,omitempty" yaml:"total_questions_threshold,omitempty" validate:"omitempty,gte=1"`
}

// Content is everything the tutor needs to know about a subtopic.
type Content struct {
	Version     string           `json:"version" yaml:"version" validate:"required"`
	Title       string           `json:"title" yaml:"title" validate:"required"`
	Path        Path             `json:"path" yaml:"path"`
	Progression []MasteryStep    `json:"mastery_progression" yaml:"mastery_progression" validate:"required,min=1,dive"`
	Policy      CompletionPolicy `json:"completion_policy" yaml:"completion_policy"`
}

// Key returns the TopicKey for this content's path.
func (c *Content) Key() TopicKey {
	return PathToKey(c.Path)
}

// StepIndexByConcept returns the index of the first step whose concept name
// matches, ignoring case and surrounding whitespace. Returns -1 if none match.
func StepIndexByConcept(progression []MasteryStep, concept string) int {
	want := normalizeConcept(concept)
	if want == "" {
		return -1
	}
	for i, s := range progression {
		if normalizeConcept(s.ConceptName) == want {
			return i
		}
	}
	return -1
}

// TotalRequired sums the required question counts across all steps.
func TotalRequired(progression []MasteryStep) int {
	total := 0
	for _, s := range progression {
		total += s.RequiredQuestions
	}
	return total
}

// ConceptNames lists the progression's concepts in step order.
func ConceptNames(progression []MasteryStep) []string {
	names := make([]string, len(progression))
	for i, s := range progression {
		names[i] = s.ConceptName
	}
	return names
}

func normalizeConcept(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
