package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestInit_ExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := Init(Config{Enabled: true, ServiceName: "tutor-test", Writer: &buf}, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, span := otel.Tracer("telemetry_test").Start(context.Background(), "tutor.ProcessTurn")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "tutor.ProcessTurn") || !strings.Contains(out, "tutor-test") {
		t.Fatalf("span not exported:\n%s", out)
	}
}
