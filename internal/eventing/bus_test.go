package eventing

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	memory "github.com/SergFTM/wealth-os-sub013/internal/eventing/infrastructure/memory"
)

func testEnvelope(id, name string) Envelope {
	return Envelope{
		EventID:   id,
		EventName: name,
		TenantID:  "tenant-a",
		SubjectID: "inv-42",
		Fields:    map[string]any{"amount": float64(500)},
	}
}

func TestBus_PublishRouting(t *testing.T) {
	bus := NewBus(log.New(io.Discard, "", 0))
	var overdue, paid, all int
	bus.Subscribe("invoice.overdue", func(context.Context, Envelope) error { overdue++; return nil })
	bus.Subscribe("invoice.paid", func(context.Context, Envelope) error { paid++; return nil })
	bus.Subscribe(MatchAll, func(context.Context, Envelope) error { all++; return nil })

	bus.Publish(context.Background(), testEnvelope("e-1", "invoice.overdue"))
	bus.Publish(context.Background(), testEnvelope("e-2", "invoice.overdue"))
	bus.Publish(context.Background(), testEnvelope("e-3", "invoice.paid"))

	if overdue != 2 || paid != 1 || all != 3 {
		t.Fatalf("overdue=%d paid=%d all=%d", overdue, paid, all)
	}
}

func TestBus_FailingHandlerDoesNotStopOthers(t *testing.T) {
	bus := NewBus(log.New(io.Discard, "", 0))
	var reached bool
	bus.Subscribe("invoice.overdue", func(context.Context, Envelope) error {
		return errors.New("handler broke")
	})
	bus.Subscribe("invoice.overdue", func(context.Context, Envelope) error {
		reached = true
		return nil
	})

	bus.Publish(context.Background(), testEnvelope("e-1", "invoice.overdue"))
	if !reached {
		t.Fatal("second handler never ran")
	}
}

func TestWrapHandler_Idempotent(t *testing.T) {
	store := memory.NewProcessedStore()
	var calls int
	wrapped := WrapHandler("engine.ingest", func(context.Context, Envelope) error {
		calls++
		return nil
	}, store)

	env := testEnvelope("e-1", "invoice.overdue")
	for i := 0; i < 3; i++ {
		if err := wrapped(context.Background(), env); err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times", calls)
	}

	// A different event id is new work.
	if err := wrapped(context.Background(), testEnvelope("e-2", "invoice.overdue")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if calls != 2 {
		t.Fatalf("handler ran %d times", calls)
	}

	// A second consumer tracks its own progress.
	var otherCalls int
	other := WrapHandler("audit.trail", func(context.Context, Envelope) error {
		otherCalls++
		return nil
	}, store)
	if err := other(context.Background(), env); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if otherCalls != 1 {
		t.Fatalf("other consumer ran %d times", otherCalls)
	}
}

func TestWrapHandler_FailureIsRetriable(t *testing.T) {
	store := memory.NewProcessedStore()
	var calls int
	wrapped := WrapHandler("engine.ingest", func(context.Context, Envelope) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	}, store)

	env := testEnvelope("e-1", "invoice.overdue")
	if err := wrapped(context.Background(), env); err == nil {
		t.Fatal("expected first attempt to fail")
	}
	// The failed attempt was not marked processed, so a retry runs.
	if err := wrapped(context.Background(), env); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("handler ran %d times", calls)
	}
}

func TestWrapHandler_MissingEventIDPassesThrough(t *testing.T) {
	store := memory.NewProcessedStore()
	var calls int
	wrapped := WrapHandler("engine.ingest", func(context.Context, Envelope) error {
		calls++
		return nil
	}, store)

	env := testEnvelope("", "invoice.overdue")
	for i := 0; i < 2; i++ {
		if err := wrapped(context.Background(), env); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("handler ran %d times", calls)
	}
}

func TestEnvelope_Normalize(t *testing.T) {
	env := Envelope{EventName: "invoice.overdue"}
	if err := env.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if env.EventID == "" || env.OccurredAt.IsZero() {
		t.Fatalf("normalize left blanks: %+v", env)
	}

	missing := Envelope{}
	if err := missing.Normalize(); err == nil {
		t.Fatal("expected error for empty event name")
	}

	if _, err := NewEnvelope("", "tenant-a", "inv-42", nil); err == nil {
		t.Fatal("expected error for empty event name")
	}
}
