package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fpachisa/TutorAI-sub000/internal/curriculum"
	"github.com/fpachisa/TutorAI-sub000/internal/llm"
	"github.com/fpachisa/TutorAI-sub000/internal/mastery"
	"github.com/fpachisa/TutorAI-sub000/internal/session"
	"github.com/fpachisa/TutorAI-sub000/internal/tutor"
)

var (
	errTooManyRequests = errors.New("too many requests, slow down")
	errMissingUID      = errors.New("uid query parameter is required")
)

// TurnProcessor runs tutoring turns.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, req tutor.TurnRequest) (*tutor.TurnResponse, error)
}

type TurnHandler struct {
	turns TurnProcessor
}

func NewTurnHandler(turns TurnProcessor) *TurnHandler {
	return &TurnHandler{turns: turns}
}

// CreateTurn is POST /api/turns. The body is a turn request; the reply is
// always a turn response, with a status code derived from the failure kind.
func (h *TurnHandler) CreateTurn(c *gin.Context) {
	var req tutor.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, &tutor.TurnResponse{Error: tutor.UserMessage})
		return
	}

	resp, err := h.turns.ProcessTurn(c.Request.Context(), req)
	if err != nil {
		c.JSON(turnStatus(err), resp)
		return
	}
	RespondOK(c, resp)
}

// turnStatus maps a failed turn to an HTTP status: client mistakes are 4xx,
// dependency failures 5xx.
func turnStatus(err error) int {
	switch tutor.KindOf(err) {
	case tutor.KindInput:
		switch {
		case errors.Is(err, session.ErrSessionOwnership):
			return http.StatusForbidden
		case errors.Is(err, tutor.ErrTopicMismatch):
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case tutor.KindContent:
		if errors.Is(err, curriculum.ErrContentNotFound) {
			return http.StatusNotFound
		}
		return http.StatusServiceUnavailable
	case tutor.KindGeneration:
		if errors.Is(err, llm.ErrTimeout) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case tutor.KindStore:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// SessionView is the progress snapshot served for a session.
type SessionView struct {
	SessionID          string                 `json:"session_id"`
	TopicKey           curriculum.TopicKey    `json:"topic_key"`
	Path               curriculum.Path        `json:"path"`
	TurnCount          int                    `json:"turn_count"`
	MasteryScore       float64                `json:"mastery_score"`
	CurrentMasteryStep int                    `json:"current_mastery_step"`
	CurrentHintLevel   int                    `json:"current_hint_level"`
	FrustratedTurns    int                    `json:"frustrated_turns"`
	Completed          bool                   `json:"completed"`
	Steps              []mastery.StepSummary  `json:"steps,omitempty"`
	StepProgress       []session.StepProgress `json:"step_progress"`
	Turns              []session.Turn         `json:"turns,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	LastActivity       time.Time              `json:"last_activity"`
}

type SessionHandler struct {
	sessions session.Store
	content  curriculum.ContentStore
}

func NewSessionHandler(sessions session.Store, content curriculum.ContentStore) *SessionHandler {
	return &SessionHandler{sessions: sessions, content: content}
}

// GetSession is GET /api/sessions/:id?uid=...&turns=true. A session owned
// by someone else is reported as not found.
func (h *SessionHandler) GetSession(c *gin.Context) {
	uid := strings.TrimSpace(c.Query("uid"))
	if uid == "" {
		RespondError(c, http.StatusBadRequest, "missing_uid", errMissingUID)
		return
	}

	s, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		RespondError(c, http.StatusNotFound, "session_not_found", session.ErrSessionNotFound)
		return
	case err != nil:
		RespondError(c, http.StatusServiceUnavailable, "store_unavailable", session.ErrStoreUnavailable)
		return
	case s.UID != uid:
		RespondError(c, http.StatusNotFound, "session_not_found", session.ErrSessionNotFound)
		return
	}

	view := SessionView{
		SessionID:          s.SessionID,
		TopicKey:           s.TopicKey,
		Path:               s.Path,
		TurnCount:          len(s.Turns),
		MasteryScore:       s.MasteryScore,
		CurrentMasteryStep: s.CurrentMasteryStep,
		CurrentHintLevel:   s.CurrentHintLevel,
		FrustratedTurns:    s.FrustratedTurns,
		Completed:          s.Completed,
		StepProgress:       session.CloneProgress(s.StepProgress),
		CreatedAt:          s.CreatedAt,
		LastActivity:       s.LastActivity,
	}
	if view.StepProgress == nil {
		view.StepProgress = []session.StepProgress{}
	}
	if c.Query("turns") == "true" {
		view.Turns = s.Turns
	}
	if h.content != nil {
		if content, err := h.content.Content(c.Request.Context(), s.Path); err == nil {
			view.Steps = mastery.Summarize(s, content.Progression)
		}
	}
	RespondOK(c, view)
}

type CurriculumHandler struct {
	content curriculum.ContentStore
}

func NewCurriculumHandler(content curriculum.ContentStore) *CurriculumHandler {
	return &CurriculumHandler{content: content}
}

// ListCurriculum is GET /api/curriculum.
func (h *CurriculumHandler) ListCurriculum(c *gin.Context) {
	lister, ok := h.content.(curriculum.Lister)
	if !ok {
		RespondError(c, http.StatusNotImplemented, "not_listable", errors.New("content store cannot list subtopics"))
		return
	}
	all, err := lister.List(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusServiceUnavailable, "content_unavailable", err)
		return
	}

	type entry struct {
		Key   curriculum.TopicKey `json:"key"`
		Title string              `json:"title"`
		Steps int                 `json:"steps"`
	}
	out := make([]entry, len(all))
	for i, ct := range all {
		out[i] = entry{Key: ct.Key(), Title: ct.Title, Steps: len(ct.Progression)}
	}
	RespondOK(c, gin.H{"subtopics": out})
}

// GetCurriculum is GET /api/curriculum/:key. The key is resolved with the
// same codec the turn endpoint uses.
func (h *CurriculumHandler) GetCurriculum(c *gin.Context) {
	path := curriculum.KeyToPath(curriculum.TopicKey(c.Param("key")))
	content, err := h.content.Content(c.Request.Context(), path)
	switch {
	case errors.Is(err, curriculum.ErrContentNotFound):
		RespondError(c, http.StatusNotFound, "content_not_found", err)
		return
	case err != nil:
		RespondError(c, http.StatusServiceUnavailable, "content_unavailable", err)
		return
	}
	RespondOK(c, content)
}

func HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
