package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/fpachisa/TutorAI-sub000/internal/curriculum"
	"github.com/fpachisa/TutorAI-sub000/internal/session"
)

const defaultAppendAttempts = 3

var sessionColumnNames = []string{
	"session_id", "uid", "topic_key", "grade", "subject", "topic", "subtopic",
	"created_at", "last_activity", "mastery_score", "frustrated_turns",
	"current_hint_level", "completed", "current_mastery_step", "step_progress",
}

var turnColumnNames = []string{
	"turn_number", "student_message", "tutor_message", "intent", "concept_tags",
	"hint_level", "mastery_gained", "student_frustrated", "timestamp", "answer_credited",
}

// SessionRepo is the SQLite implementation of session.Store. Turns live in
// their own table with a unique (session_id, turn_number) index, so a stale
// turn count can never overwrite an existing turn.
type SessionRepo struct {
	db          *sql.DB
	maxAttempts int
	now         func() time.Time
}

var _ session.Store = (*SessionRepo)(nil)

func (r *SessionRepo) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

func (r *SessionRepo) Get(ctx context.Context, sessionID string) (*session.TutorSession, error) {
	s, err := r.loadSession(ctx, r.db, sessionID)
	if err != nil {
		return nil, err
	}
	turns, err := r.loadTurns(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.Turns = turns
	return s, nil
}

func (r *SessionRepo) CreateIfAbsent(ctx context.Context, s *session.TutorSession) (*session.TutorSession, bool, error) {
	progress, err := marshalJSON(s.StepProgress)
	if err != nil {
		return nil, false, err
	}

	query, args := builder.Insert(tableSessions).
		Columns(sessionColumnNames...).
		Values(
			s.SessionID, s.UID, string(s.TopicKey),
			s.Path.Grade, s.Path.Subject, s.Path.Topic, s.Path.Subtopic,
			s.CreatedAt.UTC(), s.LastActivity.UTC(), s.MasteryScore, s.FrustratedTurns,
			s.CurrentHintLevel, s.Completed, s.CurrentMasteryStep, progress,
		).
		OnConflict(entsql.ConflictColumns("session_id"), entsql.DoNothing()).
		Query()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, false, unavailable("create session", err)
	}
	n, _ := res.RowsAffected()

	stored, err := r.Get(ctx, s.SessionID)
	if err != nil {
		return nil, false, err
	}
	return stored, n == 1, nil
}

func (r *SessionRepo) AppendTurn(ctx context.Context, sessionID string, t session.Turn) (*session.TutorSession, error) {
	attempts := r.maxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = r.appendTurnTx(ctx, sessionID, t)
		if err == nil {
			return r.Get(ctx, sessionID)
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
	}
	return nil, unavailable("append turn", fmt.Errorf("turn number contention after %d attempts: %w", attempts, err))
}

func (r *SessionRepo) appendTurnTx(ctx context.Context, sessionID string, t session.Turn) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin append", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = r.loadSession(ctx, tx, sessionID); err != nil {
		return err
	}

	query, args := builder.Select(entsql.Count("*")).
		From(builder.Table(tableTurns)).
		Where(entsql.EQ("session_id", sessionID)).
		Query()
	var count int
	if err = tx.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return unavailable("count turns", err)
	}

	tags, err := marshalJSON(t.ConceptTags)
	if err != nil {
		return err
	}
	gained, err := marshalJSON(t.MasteryGained)
	if err != nil {
		return err
	}

	now := r.clock().UTC()
	query, args = builder.Insert(tableTurns).
		Columns(append([]string{"session_id"}, turnColumnNames...)...).
		Values(
			sessionID, count+1, t.StudentMessage, t.TutorMessage, t.Intent, tags,
			t.HintLevel, gained, t.StudentFrustrated, now, t.AnswerCredited,
		).
		Query()
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return err
		}
		return unavailable("insert turn", err)
	}

	upd := builder.Update(tableSessions).
		Set("last_activity", now).
		Set("current_hint_level", t.HintLevel).
		Where(entsql.EQ("session_id", sessionID))
	if t.StudentFrustrated {
		upd.Add("frustrated_turns", 1)
	}
	query, args = upd.Query()
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return unavailable("update session after turn", err)
	}

	if err = tx.Commit(); err != nil {
		return unavailable("commit append", err)
	}
	return nil
}

func (r *SessionRepo) ApplyProgressUpdate(ctx context.Context, sessionID string, u session.ProgressUpdate) error {
	progress, err := marshalJSON(u.StepProgress)
	if err != nil {
		return err
	}

	query, args := builder.Update(tableSessions).
		Set("mastery_score", u.MasteryScore).
		Set("current_mastery_step", u.CurrentMasteryStep).
		Set("step_progress", progress).
		Set("last_activity", r.clock().UTC()).
		Where(entsql.EQ("session_id", sessionID)).
		Query()
	return r.execOne(ctx, "apply progress update", sessionID, query, args)
}

func (r *SessionRepo) MarkCompleted(ctx context.Context, sessionID string) error {
	query, args := builder.Update(tableSessions).
		Set("completed", true).
		Where(entsql.EQ("session_id", sessionID)).
		Query()
	return r.execOne(ctx, "mark completed", sessionID, query, args)
}

// ListByUser returns a user's sessions, most recently active first,
// without their turns.
func (r *SessionRepo) ListByUser(ctx context.Context, uid string, limit int) ([]*session.TutorSession, error) {
	sel := builder.Select(sessionColumnNames...).
		From(builder.Table(tableSessions)).
		Where(entsql.EQ("uid", uid)).
		OrderBy(entsql.Desc("last_activity"))
	if limit > 0 {
		sel.Limit(limit)
	}
	query, args := sel.Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list sessions", err)
	}
	defer rows.Close()

	var out []*session.TutorSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list sessions", err)
	}
	return out, nil
}

func (r *SessionRepo) execOne(ctx context.Context, op, sessionID, query string, args []any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return unavailable(op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", session.ErrSessionNotFound, sessionID)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *SessionRepo) loadSession(ctx context.Context, q queryRower, sessionID string) (*session.TutorSession, error) {
	query, args := builder.Select(sessionColumnNames...).
		From(builder.Table(tableSessions)).
		Where(entsql.EQ("session_id", sessionID)).
		Query()

	s, err := scanSession(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", session.ErrSessionNotFound, sessionID)
	}
	return s, err
}

func scanSession(row scanner) (*session.TutorSession, error) {
	var (
		s        session.TutorSession
		key      string
		progress sql.NullString
	)
	err := row.Scan(
		&s.SessionID, &s.UID, &key,
		&s.Path.Grade, &s.Path.Subject, &s.Path.Topic, &s.Path.Subtopic,
		&s.CreatedAt, &s.LastActivity, &s.MasteryScore, &s.FrustratedTurns,
		&s.CurrentHintLevel, &s.Completed, &s.CurrentMasteryStep, &progress,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, unavailable("scan session", err)
	}
	s.TopicKey = curriculum.TopicKey(key)
	if err := unmarshalJSON(progress, &s.StepProgress); err != nil {
		return nil, fmt.Errorf("decode step progress for %s: %w", s.SessionID, err)
	}
	return &s, nil
}

func (r *SessionRepo) loadTurns(ctx context.Context, sessionID string) ([]session.Turn, error) {
	query, args := builder.Select(turnColumnNames...).
		From(builder.Table(tableTurns)).
		Where(entsql.EQ("session_id", sessionID)).
		OrderBy(entsql.Asc("turn_number")).
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("load turns", err)
	}
	defer rows.Close()

	var turns []session.Turn
	for rows.Next() {
		var (
			t            session.Turn
			tags, gained sql.NullString
		)
		if err := rows.Scan(
			&t.TurnNumber, &t.StudentMessage, &t.TutorMessage, &t.Intent, &tags,
			&t.HintLevel, &gained, &t.StudentFrustrated, &t.Timestamp, &t.AnswerCredited,
		); err != nil {
			return nil, unavailable("scan turn", err)
		}
		if err := unmarshalJSON(tags, &t.ConceptTags); err != nil {
			return nil, fmt.Errorf("decode concept tags: %w", err)
		}
		if err := unmarshalJSON(gained, &t.MasteryGained); err != nil {
			return nil, fmt.Errorf("decode mastery gained: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("load turns", err)
	}
	return turns, nil
}

func marshalJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json column: %w", err)
	}
	return string(raw), nil
}

func unmarshalJSON(col sql.NullString, v any) error {
	if !col.Valid || col.String == "" || col.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), v)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", session.ErrStoreUnavailable, op, err)
}
