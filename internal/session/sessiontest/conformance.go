// Package sessiontest holds behaviour checks shared by every session.Store.
package sessiontest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fpachisa/TutorAI-sub000/internal/curriculum"
	"github.com/fpachisa/TutorAI-sub000/internal/session"
)

// Path is the curriculum path used by the shared checks.
var Path = curriculum.Path{Grade: "p6", Subject: "math", Topic: "fractions", Subtopic: "dividing-fractions"}

// Run exercises a Store implementation. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) session.Store) {
	t.Run("GetMissing", func(t *testing.T) {
		st := newStore(t)
		_, err := st.Get(context.Background(), "nope")
		if !errors.Is(err, session.ErrSessionNotFound) {
			t.Fatalf("err = %v, want ErrSessionNotFound", err)
		}
	})

	t.Run("CreateIfAbsent", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		s := session.New("u1", "s1", Path, time.Now())

		got, created, err := st.CreateIfAbsent(ctx, s)
		if err != nil || !created {
			t.Fatalf("first create: created=%v err=%v", created, err)
		}
		if got.CurrentMasteryStep != 1 || got.MasteryScore != 0 || len(got.Turns) != 0 {
			t.Errorf("new session not zeroed: %+v", got)
		}

		other := session.New("u2", "s1", Path, time.Now())
		got, created, err = st.CreateIfAbsent(ctx, other)
		if err != nil || created {
			t.Fatalf("second create: created=%v err=%v", created, err)
		}
		if got.UID != "u1" {
			t.Errorf("UID = %q, want existing session returned", got.UID)
		}
	})

	t.Run("GetOrCreateOwnership", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		if _, _, err := session.GetOrCreate(ctx, st, "u1", "s1", Path, time.Now()); err != nil {
			t.Fatal(err)
		}
		_, _, err := session.GetOrCreate(ctx, st, "u2", "s1", Path, time.Now())
		if !errors.Is(err, session.ErrSessionOwnership) {
			t.Fatalf("err = %v, want ErrSessionOwnership", err)
		}
	})

	t.Run("AppendTurn", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		mustCreate(t, st, "s1")

		s, err := st.AppendTurn(ctx, "s1", session.Turn{
			StudentMessage: "hi",
			TutorMessage:   "What is 1/2 of 4?",
			Intent:         "new_question",
			ConceptTags:    []string{"reciprocals"},
			HintLevel:      2,
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(s.Turns) != 1 || s.Turns[0].TurnNumber != 1 {
			t.Fatalf("turns = %+v", s.Turns)
		}
		if s.Turns[0].Timestamp.IsZero() {
			t.Error("turn timestamp not stamped")
		}
		if s.CurrentHintLevel != 2 {
			t.Errorf("CurrentHintLevel = %d, want 2", s.CurrentHintLevel)
		}
		if s.FrustratedTurns != 0 {
			t.Errorf("FrustratedTurns = %d, want 0", s.FrustratedTurns)
		}

		s, err = st.AppendTurn(ctx, "s1", session.Turn{StudentMessage: "idk", StudentFrustrated: true, HintLevel: 3})
		if err != nil {
			t.Fatal(err)
		}
		if s.Turns[1].TurnNumber != 2 || s.FrustratedTurns != 1 {
			t.Errorf("second turn: number=%d frustrated=%d", s.Turns[1].TurnNumber, s.FrustratedTurns)
		}
		if got := s.Turns[0].ConceptTags; len(got) != 1 || got[0] != "reciprocals" {
			t.Errorf("concept tags not persisted: %v", got)
		}

		if _, err := st.AppendTurn(ctx, "missing", session.Turn{}); !errors.Is(err, session.ErrSessionNotFound) {
			t.Errorf("append to missing session: err = %v", err)
		}
	})

	t.Run("ConcurrentAppendsAreGapless", func(t *testing.T) {
		st := newStore(t)
		mustCreate(t, st, "s1")

		const n = 10
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := st.AppendTurn(context.Background(), "s1", session.Turn{StudentMessage: "x"})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("append: %v", err)
			}
		}

		s, err := st.Get(context.Background(), "s1")
		if err != nil {
			t.Fatal(err)
		}
		if len(s.Turns) != n {
			t.Fatalf("got %d turns, want %d", len(s.Turns), n)
		}
		for i, turn := range s.Turns {
			if turn.TurnNumber != i+1 {
				t.Errorf("turns[%d].TurnNumber = %d", i, turn.TurnNumber)
			}
		}
	})

	t.Run("ApplyProgressUpdate", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		mustCreate(t, st, "s1")

		progress := []session.StepProgress{
			{StepNumber: 1, ConceptName: "reciprocals", QuestionsAsked: 2, QuestionsCompleted: 2, Completed: true},
			{StepNumber: 2, ConceptName: "fraction by fraction", QuestionsAsked: 1},
		}
		err := st.ApplyProgressUpdate(ctx, "s1", session.ProgressUpdate{
			MasteryScore:       0.4,
			CurrentMasteryStep: 2,
			StepProgress:       progress,
		})
		if err != nil {
			t.Fatal(err)
		}

		s, err := st.Get(ctx, "s1")
		if err != nil {
			t.Fatal(err)
		}
		if s.MasteryScore != 0.4 || s.CurrentMasteryStep != 2 {
			t.Errorf("score=%v step=%d", s.MasteryScore, s.CurrentMasteryStep)
		}
		if len(s.StepProgress) != 2 || !s.StepProgress[0].Completed || s.StepProgress[1].QuestionsAsked != 1 {
			t.Errorf("progress = %+v", s.StepProgress)
		}

		if err := st.ApplyProgressUpdate(ctx, "missing", session.ProgressUpdate{}); !errors.Is(err, session.ErrSessionNotFound) {
			t.Errorf("update missing: err = %v", err)
		}
	})

	t.Run("MarkCompletedIdempotent", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		mustCreate(t, st, "s1")

		for i := 0; i < 2; i++ {
			if err := st.MarkCompleted(ctx, "s1"); err != nil {
				t.Fatal(err)
			}
		}
		s, _ := st.Get(ctx, "s1")
		if !s.Completed {
			t.Error("Completed = false after MarkCompleted")
		}
	})

	t.Run("ReturnedSessionIsACopy", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		mustCreate(t, st, "s1")

		s, _ := st.Get(ctx, "s1")
		s.Completed = true
		s.Turns = append(s.Turns, session.Turn{TurnNumber: 9})

		again, _ := st.Get(ctx, "s1")
		if again.Completed || len(again.Turns) != 0 {
			t.Error("mutating a returned session changed the store")
		}
	})
}

func mustCreate(t *testing.T, st session.Store, id string) {
	t.Helper()
	if _, _, err := st.CreateIfAbsent(context.Background(), session.New("u1", id, Path, time.Now())); err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
}
