package store

import (
	"context"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	tableSessions  = "tutor_sessions"
	tableTurns     = "tutor_turns"
	tableLLMEvents = "llm_request_events"
)

var (
	sessionsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "session_id", Type: field.TypeString, Unique: true},
		{Name: "uid", Type: field.TypeString},
		{Name: "topic_key", Type: field.TypeString},
		{Name: "grade", Type: field.TypeString},
		{Name: "subject", Type: field.TypeString},
		{Name: "topic", Type: field.TypeString},
		{Name: "subtopic", Type: field.TypeString},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "last_activity", Type: field.TypeTime},
		{Name: "mastery_score", Type: field.TypeFloat64, Default: 0},
		{Name: "frustrated_turns", Type: field.TypeInt, Default: 0},
		{Name: "current_hint_level", Type: field.TypeInt, Default: 0},
		{Name: "completed", Type: field.TypeBool, Default: false},
		{Name: "current_mastery_step", Type: field.TypeInt, Default: 1},
		{Name: "step_progress", Type: field.TypeJSON, Nullable: true},
	}
	sessionsTable = &schema.Table{
		Name:       tableSessions,
		Columns:    sessionsColumns,
		PrimaryKey: []*schema.Column{sessionsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "tutorsession_uid", Columns: []*schema.Column{sessionsColumns[2]}},
		},
	}

	turnsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "session_id", Type: field.TypeString},
		{Name: "turn_number", Type: field.TypeInt},
		{Name: "student_message", Type: field.TypeString, Size: 2147483647},
		{Name: "tutor_message", Type: field.TypeString, Size: 2147483647},
		{Name: "intent", Type: field.TypeString},
		{Name: "concept_tags", Type: field.TypeJSON, Nullable: true},
		{Name: "hint_level", Type: field.TypeInt},
		{Name: "mastery_gained", Type: field.TypeJSON, Nullable: true},
		{Name: "student_frustrated", Type: field.TypeBool, Default: false},
		{Name: "timestamp", Type: field.TypeTime},
		{Name: "answer_credited", Type: field.TypeBool, Default: false},
	}
	turnsTable = &schema.Table{
		Name:       tableTurns,
		Columns:    turnsColumns,
		PrimaryKey: []*schema.Column{turnsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "tutorturn_session_id_turn_number",
				Unique:  true,
				Columns: []*schema.Column{turnsColumns[1], turnsColumns[2]},
			},
		},
	}

	llmEventsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "timestamp", Type: field.TypeTime},
		{Name: "provider", Type: field.TypeString},
		{Name: "model", Type: field.TypeString},
		{Name: "purpose", Type: field.TypeString},
		{Name: "input_tokens", Type: field.TypeInt},
		{Name: "output_tokens", Type: field.TypeInt},
		{Name: "latency_ms", Type: field.TypeInt64},
		{Name: "success", Type: field.TypeBool},
		{Name: "error_message", Type: field.TypeString, Nullable: true},
		{Name: "request_body", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "response_body", Type: field.TypeString, Nullable: true, Size: 2147483647},
	}
	llmEventsTable = &schema.Table{
		Name:       tableLLMEvents,
		Columns:    llmEventsColumns,
		PrimaryKey: []*schema.Column{llmEventsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "llmrequestevent_purpose", Columns: []*schema.Column{llmEventsColumns[4]}},
		},
	}

	tables = []*schema.Table{sessionsTable, turnsTable, llmEventsTable}
)

// migrate creates or upgrades every table this package owns.
func migrate(ctx context.Context, drv *entsql.Driver) error {
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return err
	}
	return m.Create(ctx, tables...)
}
