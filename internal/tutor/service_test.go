package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fpachisa/TutorAI-sub000/internal/curriculum"
	"github.com/fpachisa/TutorAI-sub000/internal/llm"
	"github.com/fpachisa/TutorAI-sub000/internal/metrics"
	"github.com/fpachisa/TutorAI-sub000/internal/session"
)

var testPath = curriculum.Path{Grade: "p6", Subject: "math", Topic: "fractions", Subtopic: "dividing"}

type staticContent map[curriculum.TopicKey]*curriculum.Content

func (c staticContent) Content(_ context.Context, p curriculum.Path) (*curriculum.Content, error) {
	content, ok := c[curriculum.PathToKey(p)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", curriculum.ErrContentNotFound, p)
	}
	return content, nil
}

// countingStore counts completion latches and can fail progress writes.
type countingStore struct {
	*session.MemoryStore
	marks        atomic.Int32
	failProgress bool
}

func (c *countingStore) MarkCompleted(ctx context.Context, id string) error {
	c.marks.Add(1)
	return c.MemoryStore.MarkCompleted(ctx, id)
}

func (c *countingStore) ApplyProgressUpdate(ctx context.Context, id string, u session.ProgressUpdate) error {
	if c.failProgress {
		return fmt.Errorf("%w: connection reset", session.ErrStoreUnavailable)
	}
	return c.MemoryStore.ApplyProgressUpdate(ctx, id, u)
}

type fixture struct {
	svc   *Service
	mock  *llm.MockProvider
	store *countingStore
}

func newFixture(t *testing.T, policy curriculum.CompletionPolicy, required ...int) *fixture {
	t.Helper()
	names := []string{"reciprocals", "fraction by whole number", "fraction by fraction"}
	steps := make([]curriculum.MasteryStep, len(required))
	for i, r := range required {
		steps[i] = curriculum.MasteryStep{
			StepNumber:        i + 1,
			ConceptName:       names[i],
			RequiredQuestions: r,
			SampleQuestion:    "What is 3/4 divided by 2?",
		}
	}
	content := staticContent{
		curriculum.PathToKey(testPath): {
			Version:     "v1.0.0",
			Title:       "Dividing fractions",
			Path:        testPath,
			Progression: steps,
			Policy:      policy,
		},
	}

	mock := llm.NewMockProvider()
	store := &countingStore{MemoryStore: session.NewMemoryStore()}
	svc, err := NewService(Deps{
		Provider: mock,
		Content:  content,
		Sessions: store,
		Metrics:  metrics.New(),
	}, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{svc: svc, mock: mock, store: store}
}

func reply(msg, intent string, assessment Assessment, tags ...string) llm.MockResponse {
	return llm.MockJSON(map[string]any{
		"tutor_message":     msg,
		"intent":            intent,
		"concept_tags":      append([]string{}, tags...),
		"answer_assessment": string(assessment),
	})
}

func (f *fixture) turn(t *testing.T, message string, r llm.MockResponse) *TurnResponse {
	t.Helper()
	f.mock.AddResponse(r)
	req := TurnRequest{UID: "u1", SessionID: "s1", Path: &testPath, Message: message}
	if message == "" {
		req.Intent = RequestIntentStart
	}
	resp, err := f.svc.ProcessTurn(context.Background(), req)
	if err != nil {
		t.Fatalf("turn %q: %v", message, err)
	}
	return resp
}

func (f *fixture) session(t *testing.T) *session.TutorSession {
	t.Helper()
	s, err := f.store.Get(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestProcessTurn_StartCreatesSession(t *testing.T) {
	f := newFixture(t, curriculum.CompletionPolicy{RequiresAllSteps: true}, 2)

	resp := f.turn(t, "", reply("Hi! What is the reciprocal of 3/4?", IntentNewQuestion, AssessmentNone, "reciprocals"))

	if !resp.Success || resp.Error != "" {
		t.Fatalf("unexpected failure: %+v", resp)
	}
	if resp.TurnNumber != 1 || resp.CurrentMasteryStep != 1 || resp.MasteryScore != 0 {
		t.Fatalf("turn=%d step=%d score=%v", resp.TurnNumber, resp.CurrentMasteryStep, resp.MasteryScore)
	}
	if resp.SessionID != "s1" || resp.TopicCompleted {
		t.Fatalf("unexpected response: %+v", resp)
	}

	s := f.session(t)
	if len(s.Turns) != 1 || s.Turns[0].TurnNumber != 1 || s.Turns[0].StudentMessage != "" {
		t.Fatalf("turns = %+v", s.Turns)
	}
	if len(s.StepProgress) != 1 || s.StepProgress[0].QuestionsAsked != 1 {
		t.Fatalf("step progress = %+v", s.StepProgress)
	}
	if !strings.Contains(f.mock.LastRequest().Messages[0].Content, "just opened this topic") {
		t.Error("start prompt not used")
	}
}

func TestProcessTurn_InputErrors(t *testing.T) {
	bad := curriculum.Path{Grade: "P6", Subject: "math", Topic: "fractions", Subtopic: "dividing"}
	tests := []struct {
		name string
		req  TurnRequest
	}{
		{"missing uid", TurnRequest{SessionID: "s1", Path: &testPath, Message: "hi"}},
		{"missing session", TurnRequest{UID: "u1", Path: &testPath, Message: "hi"}},
		{"missing path and key", TurnRequest{UID: "u1", SessionID: "s1", Message: "hi"}},
		{"empty message", TurnRequest{UID: "u1", SessionID: "s1", Path: &testPath, Message: "  "}},
		{"markup only", TurnRequest{UID: "u1", SessionID: "s1", Path: &testPath, Message: "<br>"}},
		{"unknown intent", TurnRequest{UID: "u1", SessionID: "s1", Path: &testPath, Message: "hi", Intent: "answer"}},
		{"invalid path", TurnRequest{UID: "u1", SessionID: "s1", Path: &bad, Message: "hi"}},
		{"junk topic key", TurnRequest{UID: "u1", SessionID: "s1", TopicKey: "___", Message: "hi"}},
		{"topic key without subtopic", TurnRequest{UID: "u1", SessionID: "s1", TopicKey: "p6_math__", Intent: RequestIntentStart}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, curriculum.CompletionPolicy{}, 1)
			resp, err := f.svc.ProcessTurn(context.Background(), tt.req)
			if KindOf(err) != KindInput || !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("err = %v, want input error", err)
			}
			if resp.Success || resp.Error != UserMessage {
				t.Fatalf("resp = %+v", resp)
			}
			if f.mock.CallCount() != 0 || f.store.Len() != 0 {
				t.Fatal("rejected request reached the model or the store")
			}
		})
	}
}

func TestProcessTurn_StepCompletionAdvances(t *testing.T) {
	f := newFixture(t, curriculum.CompletionPolicy{RequiresAllSteps: true}, 3, 2)

	f.turn(t, "", reply("What is the reciprocal of 3/4?", IntentNewQuestion, AssessmentNone, "reciprocals"))
	for i := 1; i <= 2; i++ {
		resp := f.turn(t, "4/3", reply("Yes! And of 2/5?", IntentNewQuestion, AssessmentCorrect, "reciprocals"))
		if resp.StepProgress[0].QuestionsCompleted != i || resp.StepProgress[0].Completed {
			t.Fatalf("after answer %d: %+v", i, resp.StepProgress[0])
		}
		if resp.CurrentMasteryStep != 1 {
			t.Fatalf("after answer %d: step %d", i, resp.CurrentMasteryStep)
		}
	}

	resp := f.turn(t, "5/2", reply("Great. Now try 3/4 divided by 2.", IntentNewQuestion, AssessmentCorrect, "fraction by whole number"))
	if !resp.StepProgress[0].Completed || resp.CurrentMasteryStep != 2 {
		t.Fatalf("step 1 not completed/advanced: %+v step=%d", resp.StepProgress, resp.CurrentMasteryStep)
	}
	if resp.MasteryScore != 0.6 {
		t.Fatalf("MasteryScore = %v, want 0.6", resp.MasteryScore)
	}
	if resp.StepProgress[1].QuestionsAsked != 1 {
		t.Fatalf("tutor question on step 2 not counted: %+v", resp.StepProgress[1])
	}

	s := f.session(t)
	last := s.Turns[len(s.Turns)-1]
	if len(last.MasteryGained) != 1 || last.MasteryGained[0] != "reciprocals" {
		t.Fatalf("MasteryGained = %v", last.MasteryGained)
	}
	if s.MasteryScore != 0.6 || s.CurrentMasteryStep != 2 {
		t.Fatalf("persisted progress score=%v step=%d", s.MasteryScore, s.CurrentMasteryStep)
	}
}

func TestProcessTurn_QuestionCreditedOnce(t *testing.T) {
	f := newFixture(t, curriculum.CompletionPolicy{RequiresAllSteps: true}, 2, 1)

	f.turn(t, "", reply("What is the reciprocal of 3/4?", IntentNewQuestion, AssessmentNone, "reciprocals"))
	resp := f.turn(t, "4/3", reply("Right. Why does flipping work?", IntentGuide, AssessmentCorrect, "reciprocals"))
	if got := resp.StepProgress[0].QuestionsCompleted; got != 1 {
		t.Fatalf("after first answer: completed %d, want 1", got)
	}

	// Follow-ups to the same question never count again.
	f.turn(t, "because 3/4 times 4/3 is 1", reply("Exactly.", IntentFeedback, AssessmentCorrect, "reciprocals"))
	resp = f.turn(t, "so it is 1", reply("Yes, it is.", IntentGuide, AssessmentCorrect, "reciprocals"))
	step := resp.StepProgress[0]
	if step.QuestionsCompleted != 1 || step.Completed || resp.CurrentMasteryStep != 1 {
		t.Fatalf("one question credited twice: %+v step=%d", step, resp.CurrentMasteryStep)
	}
	if step.QuestionsCompleted > step.QuestionsAsked {
		t.Fatalf("completed %d > asked %d", step.QuestionsCompleted, step.QuestionsAsked)
	}
	if resp.MasteryScore != 1.0/3 {
		t.Fatalf("MasteryScore = %v, want 1/3", resp.MasteryScore)
	}

	s := f.session(t)
	credited := 0
	for _, turn := range s.Turns {
		if turn.AnswerCredited {
			credited++
		}
	}
	if credited != 1 || !s.Turns[1].AnswerCredited {
		t.Fatalf("credited turns = %d, want only turn 2", credited)
	}

	// A new question reopens accounting.
	f.turn(t, "ok", reply("What is the reciprocal of 2/5?", IntentNewQuestion, AssessmentNone, "reciprocals"))
	resp = f.turn(t, "5/2", reply("Great!", IntentFeedback, AssessmentCorrect, "reciprocals"))
	if !resp.StepProgress[0].Completed || resp.CurrentMasteryStep != 2 {
		t.Fatalf("second question not credited: %+v step=%d", resp.StepProgress[0], resp.CurrentMasteryStep)
	}
}

func TestProcessTurn_CompletesExactlyOnce(t *testing.T) {
	f := newFixture(t, curriculum.CompletionPolicy{RequiresAllSteps: true}, 1, 1)

	f.turn(t, "", reply("Reciprocal of 3/4?", IntentNewQuestion, AssessmentNone, "reciprocals"))
	resp := f.turn(t, "4/3", reply("Now 3/4 divided by 2?", IntentNewQuestion, AssessmentCorrect, "fraction by whole number"))
	if resp.TopicCompleted {
		t.Fatal("completed with step 2 unfinished")
	}

	resp = f.turn(t, "3/8", reply("You did it!", IntentCelebrate, AssessmentCorrect))
	if !resp.TopicCompleted {
		t.Fatalf("expected completion: %+v", resp)
	}

	for range 2 {
		resp = f.turn(t, "can we do more?", reply("Let's review. What is 1/2 divided by 3?", IntentGuide, AssessmentNone))
		if !resp.TopicCompleted {
			t.Fatal("completion was reset")
		}
	}
	if got := f.store.marks.Load(); got != 1 {
		t.Fatalf("MarkCompleted called %d times, want 1", got)
	}
}

func TestProcessTurn_ThresholdPolicy(t *testing.T) {
	threshold := 2
	f := newFixture(t, curriculum.CompletionPolicy{TotalQuestionsThreshold: &threshold}, 5)

	resp := f.turn(t, "", reply("Reciprocal of 3/4?", IntentNewQuestion, AssessmentNone, "reciprocals"))
	if resp.TopicCompleted {
		t.Fatal("completed after one question")
	}
	resp = f.turn(t, "4/3", reply("And 5/6?", IntentNewQuestion, AssessmentIncorrect, "reciprocals"))
	if !resp.TopicCompleted {
		t.Fatal("expected completion at two asked questions")
	}
}

func TestProcessTurn_GenerationTimeout(t *testing.T) {
	f := newFixture(t, curriculum.CompletionPolicy{RequiresAllSteps: true}, 1, 1)
	f.turn(t, "", reply("Reciprocal of 3/4?", IntentNewQuestion, AssessmentNone, "reciprocals"))
	before := f.session(t)

	f.svc.provider = blockingProvider{}
	f.svc.cfg.GenerationTimeout = 20 * time.Millisecond

	resp, err := f.svc.ProcessTurn(context.Background(), TurnRequest{UID: "u1", SessionID: "s1", Path: &testPath, Message: "4/3"})
	if KindOf(err) != KindGeneration || !errors.Is(err, ErrGenerationFailure) || !errors.Is(err, llm.ErrTimeout) {
		t.Fatalf("err = %v, want generation timeout", err)
	}
	if resp.Success || resp.Error != UserMessage || resp.TutorMessage != "" {
		t.Fatalf("resp = %+v", resp)
	}

	after := f.session(t)
	if len(after.Turns) != len(before.Turns) {
		t.Fatal("a turn was appended for a failed generation")
	}
	if after.StepProgress[0] != before.StepProgress[0] || after.MasteryScore != before.MasteryScore {
		t.Fatalf("progress changed: before %+v after %+v", before.StepProgress, after.StepProgress)
	}
}

type blockingProvider struct{}

func (blockingProvider) Generate(ctx context.Context, _ llm.Request) (*llm.Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingProvider) ModelID() string { return "blocking" }

func TestProcessTurn_InvalidModelOutput(t *testing.T) {
	tests := []struct {
		name string
		resp llm.MockResponse
	}{
		{"schema violation", llm.MockJSON(map[string]any{"tutor_message": "hi"})},
		{"blank message", reply("   ", IntentGuide, AssessmentNone)},
		{"truncated", llm.MockResponse{Content: []byte(`{"tutor_message":"Wh`), StopReason: "max_tokens"}},
		{"provider down", llm.MockResponse{Err: &llm.ErrProviderUnavailable{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, curriculum.CompletionPolicy{}, 1)
			f.mock.AddResponse(tt.resp)

			resp, err := f.svc.ProcessTurn(context.Background(), TurnRequest{
				UID: "u1", SessionID: "s1", Path: &testPath, Intent: RequestIntentStart,
			})
			if KindOf(err) != KindGeneration {
				t.Fatalf("err = %v, want generation error", err)
			}
			if resp.Success {
				t.Fatal("expected failure")
			}
			if s := f.session(t); len(s.Turns) != 0 {
				t.Fatalf("turn appended for failed generation: %+v", s.Turns)
			}
		})
	}
}

func TestProcessTurn_ContentUnavailable(t *testing.T) {
	f := newFixture(t, curriculum.CompletionPolicy{}, 1)
	other := curriculum.Path{Grade: "p5", Subject: "math", Topic: "ratio", Subtopic: "equivalent"}

	_, err := f.svc.ProcessTurn(context.Background(), TurnRequest{UID: "u1", SessionID: "s2", Path: &other, Intent: RequestIntentStart})
	if KindOf(err) != KindContent || !errors.Is(err, ErrContentUnavailable) || !errors.Is(err, curriculum.ErrContentNotFound) {
		t.Fatalf("err = %v, want content error", err)
	}
	if f.mock.CallCount() != 0 {
		t.Fatal("model called without content")
	}
}

func TestProcessTurn_FrustrationRaisesHint(t *testing.T) {
	f := newFixture(t, curriculum.CompletionPolicy{}, 2)
	f.turn(t, "", reply("Reciprocal of 3/4?", IntentNewQuestion, AssessmentNone, "reciprocals"))

	resp := f.turn(t, "idk", reply("That's okay. Flip the fraction upside down. What do you get?", IntentHint, AssessmentNone, "reciprocals"))
	if !resp.StudentFrustrated || resp.HintLevel != 1 {
		t.Fatalf("frustrated=%v hint=%d; want true, 1", resp.StudentFrustrated, resp.HintLevel)
	}
	prompt := f.mock.LastRequest().Messages[len(f.mock.LastRequest().Messages)-1].Content
	if !strings.Contains(prompt, "Hint level: 1 of 3") || !strings.Contains(prompt, "frustrated") {
		t.Fatalf("prompt missing hint context:\n%s", prompt)
	}

	resp = f.turn(t, "is it three quarters", reply("Not quite. Which number goes on top now?", IntentHint, AssessmentIncorrect, "reciprocals"))
	if resp.HintLevel != 2 {
		t.Fatalf("incorrect after one struggling turn: hint %d, want 2", resp.HintLevel)
	}
	if s := f.session(t); s.FrustratedTurns != 1 || s.CurrentHintLevel != 2 {
		t.Fatalf("frustrated turns %d hint %d", s.FrustratedTurns, s.CurrentHintLevel)
	}

	resp = f.turn(t, "4/3", reply("Yes!", IntentFeedback, AssessmentCorrect, "reciprocals"))
	if resp.HintLevel != 1 {
		t.Fatalf("correct answer: hint %d, want 1", resp.HintLevel)
	}
}

func TestProcessTurn_ProgressFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, curriculum.CompletionPolicy{}, 2)
	f.store.failProgress = true

	resp := f.turn(t, "", reply("Reciprocal of 3/4?", IntentNewQuestion, AssessmentNone, "reciprocals"))
	if !resp.Success || resp.TutorMessage == "" {
		t.Fatalf("turn should succeed: %+v", resp)
	}
	if len(resp.StepProgress) != 0 {
		t.Fatalf("response should report persisted progress, got %+v", resp.StepProgress)
	}
	if s := f.session(t); len(s.Turns) != 1 || len(s.StepProgress) != 0 {
		t.Fatalf("session = %+v", s)
	}
}

func TestProcessTurn_ProgressMismatchIsNotFatal(t *testing.T) {
	f := newFixture(t, curriculum.CompletionPolicy{}, 2, 2)
	f.turn(t, "", reply("Reciprocal of 3/4?", IntentNewQuestion, AssessmentNone, "reciprocals"))
	if err := f.store.ApplyProgressUpdate(context.Background(), "s1", session.ProgressUpdate{
		CurrentMasteryStep: 1,
		StepProgress:       []session.StepProgress{{StepNumber: 1}},
	}); err != nil {
		t.Fatal(err)
	}

	resp := f.turn(t, "4/3", reply("Yes!", IntentNewQuestion, AssessmentCorrect, "reciprocals"))
	if !resp.Success {
		t.Fatal("accounting failure must not fail the turn")
	}
	if len(resp.StepProgress) != 1 {
		t.Fatalf("progress should be left as persisted: %+v", resp.StepProgress)
	}
}

func TestProcessTurn_SessionOwnershipAndTopic(t *testing.T) {
	f := newFixture(t, curriculum.CompletionPolicy{}, 1)
	f.turn(t, "", reply("Hi!", IntentGreeting, AssessmentNone))

	_, err := f.svc.ProcessTurn(context.Background(), TurnRequest{UID: "intruder", SessionID: "s1", Path: &testPath, Message: "hi"})
	if KindOf(err) != KindInput || !errors.Is(err, session.ErrSessionOwnership) {
		t.Fatalf("err = %v, want ownership input error", err)
	}

	other := curriculum.Path{Grade: "p6", Subject: "math", Topic: "ratio", Subtopic: "equivalent"}
	_, err = f.svc.ProcessTurn(context.Background(), TurnRequest{UID: "u1", SessionID: "s1", Path: &other, Message: "hi"})
	if !errors.Is(err, ErrTopicMismatch) {
		t.Fatalf("err = %v, want ErrTopicMismatch", err)
	}
}

func TestProcessTurn_TopicKeyOnly(t *testing.T) {
	f := newFixture(t, curriculum.CompletionPolicy{}, 1)
	f.mock.AddResponse(reply("Hi!", IntentGreeting, AssessmentNone))

	resp, err := f.svc.ProcessTurn(context.Background(), TurnRequest{
		UID: "u1", SessionID: "s1", TopicKey: "p6_math_fractions_dividing", Intent: RequestIntentStart,
	})
	if err != nil || !resp.Success {
		t.Fatalf("key-only request failed: %v", err)
	}
	if s := f.session(t); s.Path != testPath {
		t.Fatalf("path = %+v", s.Path)
	}
}

func TestProcessTurn_StoreUnavailable(t *testing.T) {
	f := newFixture(t, curriculum.CompletionPolicy{}, 1)
	f.svc.sessions = brokenStore{}

	_, err := f.svc.ProcessTurn(context.Background(), TurnRequest{UID: "u1", SessionID: "s1", Path: &testPath, Intent: RequestIntentStart})
	if KindOf(err) != KindStore || !errors.Is(err, session.ErrStoreUnavailable) {
		t.Fatalf("err = %v, want store error", err)
	}
}

type brokenStore struct{ session.Store }

func (brokenStore) Get(context.Context, string) (*session.TutorSession, error) {
	return nil, fmt.Errorf("%w: dial tcp: refused", session.ErrStoreUnavailable)
}

func TestProcessTurn_ConcurrentTurnsAreGapless(t *testing.T) {
	f := newFixture(t, curriculum.CompletionPolicy{}, 3)
	f.turn(t, "", reply("Reciprocal of 3/4?", IntentNewQuestion, AssessmentNone, "reciprocals"))

	const n = 20
	for range n {
		f.mock.AddResponse(reply("Keep going.", IntentGuide, AssessmentNone))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ProcessTurn(context.Background(), TurnRequest{
				UID: "u1", SessionID: "s1", Path: &testPath, Message: fmt.Sprintf("attempt %d", i),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	s := f.session(t)
	if len(s.Turns) != n+1 {
		t.Fatalf("got %d turns, want %d", len(s.Turns), n+1)
	}
	for i, turn := range s.Turns {
		if turn.TurnNumber != i+1 {
			t.Fatalf("turns[%d].TurnNumber = %d", i, turn.TurnNumber)
		}
	}
}

func TestNewService_RequiresDeps(t *testing.T) {
	if _, err := NewService(Deps{}, DefaultConfig()); err == nil {
		t.Fatal("expected error without provider")
	}
	if _, err := NewService(Deps{Provider: llm.NewMockProvider()}, DefaultConfig()); err == nil {
		t.Fatal("expected error without content store")
	}
}
