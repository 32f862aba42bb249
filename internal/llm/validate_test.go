package llm

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestValidateResponse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "valid", raw: `{"tutor_message":"What is 3/4 flipped?","intent":"new_question","concept_tags":["reciprocals"]}`},
		{name: "empty tags allowed", raw: `{"tutor_message":"Good thinking.","intent":"guide","concept_tags":[]}`},
		{name: "missing required", raw: `{"tutor_message":"x","intent":"guide"}`, wantErr: true},
		{name: "bad enum", raw: `{"tutor_message":"x","intent":"answer","concept_tags":[]}`, wantErr: true},
		{name: "extra field", raw: `{"tutor_message":"x","intent":"hint","concept_tags":[],"answer":"3/4"}`, wantErr: true},
		{name: "wrong type", raw: `{"tutor_message":42,"intent":"hint","concept_tags":[]}`, wantErr: true},
		{name: "not json", raw: `Sure! Here is your question`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateResponse(turnSchema(), json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var inv *ErrInvalidResponse
				if !errors.As(err, &inv) {
					t.Fatalf("expected ErrInvalidResponse, got %T", err)
				}
			}
		})
	}
}

func TestValidateResponse_NilSchema(t *testing.T) {
	if err := ValidateJSON(nil, json.RawMessage(`not json`)); err != nil {
		t.Fatalf("nil schema should accept anything, got %v", err)
	}
}

func TestValidateResponse_CachesCompiledSchema(t *testing.T) {
	s := turnSchema()
	s.Name = "cache-check"
	raw := json.RawMessage(`{"tutor_message":"x","intent":"hint","concept_tags":[]}`)

	if err := validateResponse(s, raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := schemaCache.Load("cache-check"); !ok {
		t.Fatal("schema not cached after first use")
	}
	if err := validateResponse(s, raw); err != nil {
		t.Fatal(err)
	}
}
