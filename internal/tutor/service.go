// Package tutor runs one Socratic tutoring turn end to end: it loads the
// session, asks the model for the next reply, applies hint and mastery
// accounting, and persists the result.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fpachisa/TutorAI-sub000/internal/curriculum"
	"github.com/fpachisa/TutorAI-sub000/internal/llm"
	"github.com/fpachisa/TutorAI-sub000/internal/logger"
	"github.com/fpachisa/TutorAI-sub000/internal/mastery"
	"github.com/fpachisa/TutorAI-sub000/internal/metrics"
	"github.com/fpachisa/TutorAI-sub000/internal/policy"
	"github.com/fpachisa/TutorAI-sub000/internal/safety"
	"github.com/fpachisa/TutorAI-sub000/internal/session"
)

// Purpose labels tutoring calls in the LLM request log.
const Purpose = "tutor-turn"

var tracer = otel.Tracer("github.com/fpachisa/TutorAI-sub000/internal/tutor")

// Deps are the collaborators a Service needs. Provider, Content and
// Sessions are required.
type Deps struct {
	Provider llm.Provider
	Content  curriculum.ContentStore
	Sessions session.Store

	Filter  safety.Filter
	Policy  *policy.Engine
	Metrics *metrics.Metrics
	Log     *logger.Logger
	Now     func() time.Time
}

// Service processes tutoring turns. It holds no per-session state, so one
// Service serves any number of concurrent sessions.
type Service struct {
	provider llm.Provider
	content  curriculum.ContentStore
	sessions session.Store
	filter   safety.Filter
	policy   *policy.Engine
	metrics  *metrics.Metrics
	log      *logger.Logger
	now      func() time.Time
	cfg      Config
}

// NewService creates a turn orchestrator.
func NewService(deps Deps, cfg Config) (*Service, error) {
	switch {
	case deps.Provider == nil:
		return nil, errors.New("tutor: provider is required")
	case deps.Content == nil:
		return nil, errors.New("tutor: content store is required")
	case deps.Sessions == nil:
		return nil, errors.New("tutor: session store is required")
	}

	s := &Service{
		provider: deps.Provider,
		content:  deps.Content,
		sessions: deps.Sessions,
		filter:   deps.Filter,
		policy:   deps.Policy,
		metrics:  deps.Metrics,
		log:      deps.Log,
		now:      deps.Now,
		cfg:      cfg.withDefaults(),
	}
	if s.filter == nil {
		s.filter = safety.NewTextFilter(safety.Options{})
	}
	if s.policy == nil {
		s.policy = policy.New(policy.DefaultConfig())
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.log = s.log.With("component", "tutor")
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// ProcessTurn runs one turn. On failure it returns a response with Success
// false and the user-facing message, together with an *Error describing
// what failed. Nothing is persisted for a turn that fails before its reply
// exists.
func (s *Service) ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "tutor.ProcessTurn", trace.WithAttributes(
		attribute.String("tutor.intent", req.Intent),
	))
	defer span.End()

	resp, err := s.processTurn(ctx, req, span)

	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		s.log.Warn("turn failed", "session_id", req.SessionID, "kind", outcome, "error", err)

		if resp == nil {
			resp = &TurnResponse{SessionID: req.SessionID}
		}
		resp.Success = false
		resp.Error = UserMessage
	}
	s.metrics.ObserveTurn(outcome, time.Since(start))
	return resp, err
}

func (s *Service) processTurn(ctx context.Context, req TurnRequest, span trace.Span) (*TurnResponse, error) {
	// NoSession: validate and sanitize before touching any store.
	path, err := validateRequest(req)
	if err != nil {
		return nil, err
	}
	message := s.filter.Sanitize(req.Message)
	if message == "" && !req.IsStart() {
		return nil, inputError("message is empty")
	}

	sess, created, err := session.GetOrCreate(ctx, s.sessions, req.UID, req.SessionID, path, s.now())
	if err != nil {
		if errors.Is(err, session.ErrSessionOwnership) {
			return nil, &Error{Kind: KindInput, Err: err}
		}
		return nil, storeError("load session", err)
	}
	if sess.TopicKey != curriculum.PathToKey(path) {
		return nil, &Error{Kind: KindInput, Err: fmt.Errorf("%w: %s is %s, not %s",
			ErrTopicMismatch, req.SessionID, sess.TopicKey, curriculum.PathToKey(path))}
	}
	span.SetAttributes(
		attribute.String("tutor.topic_key", string(sess.TopicKey)),
		attribute.Int("tutor.turns", len(sess.Turns)),
		attribute.Bool("tutor.session_created", created),
	)
	if created {
		s.log.Info("session created", "session_id", sess.SessionID, "uid", sess.UID, "topic_key", sess.TopicKey)
	}

	// SessionActive: estimate before the model has judged anything.
	frustrated := !req.IsStart() && s.policy.DetectFrustration(sess, message)
	provisional := s.policy.ProvisionalHintLevel(sess, frustrated)

	content, err := s.content.Content(ctx, sess.Path)
	if err != nil {
		return snapshot(sess), contentError(err)
	}

	inFlight := inFlightConcepts(sess)

	// Generating.
	reply, err := s.generate(ctx, turnInput{
		Session:    sess,
		Content:    content,
		InFlight:   inFlight,
		HintLevel:  provisional,
		Frustrated: frustrated,
		Message:    message,
		Start:      req.IsStart(),
	})
	if err != nil {
		return snapshot(sess), generationError(err)
	}
	if req.IsStart() {
		reply.Assessment = AssessmentNone
	}

	// Updating: authoritative hint level from the model's judgment.
	hint := provisional
	if reply.Assessment != AssessmentNone {
		hint = s.policy.NextHintLevel(sess, reply.Assessment == AssessmentCorrect)
	}

	work := sess.Clone()
	gained, credited := s.account(work, content.Progression, inFlight, reply)

	updated, err := s.sessions.AppendTurn(ctx, sess.SessionID, session.Turn{
		StudentMessage:    message,
		TutorMessage:      reply.TutorMessage,
		Intent:            reply.Intent,
		ConceptTags:       reply.ConceptTags,
		HintLevel:         hint,
		MasteryGained:     gained,
		StudentFrustrated: frustrated,
		AnswerCredited:    credited,
	})
	if err != nil {
		return snapshot(sess), storeError("append turn", err)
	}
	turnNumber := len(updated.Turns)

	// Persisted: the reply is committed; everything after is best-effort.
	// Writes use a context that survives a client disconnect.
	bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StoreTimeout)
	defer cancel()

	updated.MasteryScore = work.MasteryScore
	updated.CurrentMasteryStep = work.CurrentMasteryStep
	updated.StepProgress = work.StepProgress
	if progressChanged(sess, work) {
		err := s.sessions.ApplyProgressUpdate(bgCtx, sess.SessionID, session.ProgressUpdate{
			MasteryScore:       work.MasteryScore,
			CurrentMasteryStep: work.CurrentMasteryStep,
			StepProgress:       work.StepProgress,
		})
		if err != nil {
			s.metrics.ProgressFailure("persist")
			s.log.Warn("progress update failed", "session_id", sess.SessionID, "error", err)
			updated.MasteryScore = sess.MasteryScore
			updated.CurrentMasteryStep = sess.CurrentMasteryStep
			updated.StepProgress = sess.StepProgress
		}
	}

	// Completed is latched: evaluate only while it is still open.
	if !updated.Completed && mastery.IsTopicComplete(updated, content.Policy) {
		if err := s.sessions.MarkCompleted(bgCtx, sess.SessionID); err != nil {
			s.metrics.ProgressFailure("complete")
			s.log.Warn("mark completed failed", "session_id", sess.SessionID, "error", err)
		} else {
			updated.Completed = true
			s.metrics.TopicCompleted()
			s.log.Info("topic completed", "session_id", sess.SessionID, "topic_key", sess.TopicKey, "turns", turnNumber)
		}
	}

	s.metrics.ObserveHint(hint, frustrated)
	span.SetAttributes(
		attribute.Int("tutor.turn_number", turnNumber),
		attribute.Int("tutor.hint_level", hint),
		attribute.String("tutor.reply_intent", reply.Intent),
		attribute.Bool("tutor.topic_completed", updated.Completed),
	)

	resp := snapshot(updated)
	resp.Success = true
	resp.TutorMessage = reply.TutorMessage
	resp.Intent = reply.Intent
	resp.ConceptTags = reply.ConceptTags
	resp.HintLevel = hint
	resp.TurnNumber = turnNumber
	resp.StudentFrustrated = frustrated
	return resp, nil
}

// generate asks the model for the next reply under the generation timeout.
func (s *Service) generate(ctx context.Context, in turnInput) (*modelTurn, error) {
	ctx, span := tracer.Start(ctx, "tutor.generate", trace.WithAttributes(
		attribute.String("llm.model", s.provider.ModelID()),
		attribute.Int("tutor.provisional_hint_level", in.HintLevel),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(llm.WithPurpose(ctx, Purpose), s.cfg.GenerationTimeout)
	defer cancel()

	started := time.Now()
	resp, err := s.provider.Generate(ctx, buildTurnRequest(in, s.cfg))
	if err == nil {
		var out modelTurn
		out, err = llm.DecodeJSON[modelTurn](resp)
		if err == nil {
			err = checkReply(&out)
		}
		if err == nil {
			s.metrics.ObserveGeneration(s.provider.ModelID(), true, time.Since(started))
			span.SetAttributes(attribute.Int("llm.output_tokens", resp.Usage.OutputTokens))
			return &out, nil
		}
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, llm.ErrTimeout) {
		err = fmt.Errorf("%w after %s: %w", llm.ErrTimeout, s.cfg.GenerationTimeout, err)
	}
	s.metrics.ObserveGeneration(s.provider.ModelID(), false, time.Since(started))
	span.RecordError(err)
	span.SetStatus(codes.Error, "generation failed")
	return nil, err
}

// account runs the two accounting events of a turn against work. They are
// independent: a failure in one is logged and does not stop the other. It
// returns the concepts whose steps completed and whether a correct answer
// to the open question was counted.
func (s *Service) account(work *session.TutorSession, progression []curriculum.MasteryStep, inFlight []string, reply *modelTurn) ([]string, bool) {
	var (
		gained   []string
		credited bool
	)
	log := s.log.With("session_id", work.SessionID)

	if reply.Assessment != AssessmentNone && len(inFlight) > 0 {
		out, err := mastery.RecordStudentCompletion(work, progression, inFlight, reply.Assessment == AssessmentCorrect)
		if err != nil {
			s.metrics.ProgressFailure(string(mastery.EventStudentCompletion))
			log.Warn("student completion accounting failed", "error", err)
		} else {
			credited = reply.Assessment == AssessmentCorrect
			gained = out.CompletedConcepts()
			s.metrics.StepsCompleted(len(out.Completed))
			if len(out.Unmatched) > 0 {
				log.Debug("in-flight concepts not in progression", "concepts", out.Unmatched)
			}
			if len(gained) > 0 {
				log.Info("mastery gained", "concepts", gained, "current_step", work.CurrentMasteryStep)
			}
		}
	}

	out, err := mastery.RecordTutorQuestion(work, progression, reply.ConceptTags, reply.Intent)
	if err != nil {
		s.metrics.ProgressFailure(string(mastery.EventTutorQuestion))
		log.Warn("tutor question accounting failed", "error", err)
	} else if len(out.Unmatched) > 0 {
		log.Debug("concept tags not in progression", "concepts", out.Unmatched)
	}

	return gained, credited
}

// inFlightConcepts returns the concept tags of the question the student is
// now answering: the latest tutor turn that asked a new question, unless a
// later turn already credited a correct answer to it. A turn that credits an
// answer and asks a new question opens the new one.
func inFlightConcepts(s *session.TutorSession) []string {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		t := s.Turns[i]
		if t.Intent == IntentNewQuestion {
			return slices.Clone(t.ConceptTags)
		}
		if t.AnswerCredited {
			return nil
		}
	}
	return nil
}

func validateRequest(req TurnRequest) (curriculum.Path, error) {
	var missing []string
	if strings.TrimSpace(req.UID) == "" {
		missing = append(missing, "uid")
	}
	if strings.TrimSpace(req.SessionID) == "" {
		missing = append(missing, "session_id")
	}
	if (req.Path == nil || req.Path.IsZero()) && strings.TrimSpace(string(req.TopicKey)) == "" {
		missing = append(missing, "path or topic_key")
	}
	if len(missing) > 0 {
		return curriculum.Path{}, inputError("missing %s", strings.Join(missing, ", "))
	}
	if req.Intent != "" && !req.IsStart() {
		return curriculum.Path{}, inputError("unknown intent %q", req.Intent)
	}

	if req.Path != nil && !req.Path.IsZero() {
		if err := req.Path.Validate(); err != nil {
			return curriculum.Path{}, inputError("%v", err)
		}
		return *req.Path, nil
	}
	path := curriculum.KeyToPath(req.TopicKey)
	if err := path.Validate(); err != nil {
		return curriculum.Path{}, inputError("topic key %q: %v", req.TopicKey, err)
	}
	return path, nil
}

// checkReply rejects replies that passed the schema but cannot drive a turn.
func checkReply(out *modelTurn) error {
	out.TutorMessage = strings.TrimSpace(out.TutorMessage)
	if out.TutorMessage == "" {
		return &llm.ErrInvalidResponse{Err: errors.New("empty tutor message")}
	}
	if !slices.Contains(modelIntents, out.Intent) {
		return &llm.ErrInvalidResponse{Err: fmt.Errorf("unknown intent %q", out.Intent)}
	}
	switch out.Assessment {
	case AssessmentCorrect, AssessmentIncorrect, AssessmentNone:
	default:
		return &llm.ErrInvalidResponse{Err: fmt.Errorf("unknown answer assessment %q", out.Assessment)}
	}

	tags := out.ConceptTags[:0]
	for _, t := range out.ConceptTags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	out.ConceptTags = tags
	if out.ConceptTags == nil {
		out.ConceptTags = []string{}
	}
	return nil
}

func progressChanged(before, after *session.TutorSession) bool {
	return before.MasteryScore != after.MasteryScore ||
		before.CurrentMasteryStep != after.CurrentMasteryStep ||
		!slices.Equal(before.StepProgress, after.StepProgress)
}

// snapshot reports the session's persisted progress.
func snapshot(s *session.TutorSession) *TurnResponse {
	progress := session.CloneProgress(s.StepProgress)
	if progress == nil {
		progress = []session.StepProgress{}
	}
	return &TurnResponse{
		SessionID:          s.SessionID,
		ConceptTags:        []string{},
		HintLevel:          s.CurrentHintLevel,
		MasteryScore:       s.MasteryScore,
		CurrentMasteryStep: s.CurrentMasteryStep,
		StepProgress:       progress,
		TopicCompleted:     s.Completed,
	}
}
