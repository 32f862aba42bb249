package curriculum

import (
	"context"
	"errors"
)

// ErrContentNotFound is returned when no content exists for a path.
var ErrContentNotFound = errors.New("curriculum content not found")

// ContentStore resolves a curriculum path to its mastery progression and
// completion policy.
type ContentStore interface {
	// Content returns the content for the given path. Returns an error
	// wrapping ErrContentNotFound if the path is unknown.
	Content(ctx context.Context, path Path) (*Content, error)
}

// Lister is implemented by stores that can enumerate their content.
type Lister interface {
	List(ctx context.Context) ([]*Content, error)
}

// clone returns a deep copy so callers can't mutate a store's cached content.
func (c *Content) clone() *Content {
	if c == nil {
		return nil
	}
	out := *c
	out.Progression = append([]MasteryStep(nil), c.Progression...)
	if c.Policy.TotalQuestionsThreshold != nil {
		v := *c.Policy.TotalQuestionsThreshold
		out.Policy.TotalQuestionsThreshold = &v
	}
	return &out
}
