package gpio_test

import (
	"errors"
	"testing"

	"pidish/internal/gpio"
)

func TestRecorderCountsRisingEdges(t *testing.T) {
	rec := gpio.NewRecorder().KeepLog()
	if err := rec.ConfigureOutput(12); err != nil {
		t.Fatalf("ConfigureOutput: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := rec.SetPin(12, true); err != nil {
			t.Fatalf("SetPin high: %v", err)
		}
		if err := rec.SetPin(12, true); err != nil {
			t.Fatalf("SetPin repeated high: %v", err)
		}
		if err := rec.SetPin(12, false); err != nil {
			t.Fatalf("SetPin low: %v", err)
		}
	}
	if got := rec.Rising(12); got != 3 {
		t.Fatalf("expected 3 rising edges, got %d", got)
	}
	if got := len(rec.Edges()); got != 9 {
		t.Fatalf("expected 9 logged edges, got %d", got)
	}
	if rec.Level(12) {
		t.Fatal("expected line to end low")
	}
}

func TestRecorderRejectsUnconfiguredAndClosed(t *testing.T) {
	rec := gpio.NewRecorder()
	if err := rec.SetPin(5, true); err == nil {
		t.Fatal("expected error for unconfigured line")
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := rec.ConfigureOutput(5); !errors.Is(err, gpio.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestOpenSimulatedReturnsRecorder(t *testing.T) {
	drv, err := gpio.Open("/nonexistent", true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := drv.(*gpio.Recorder); !ok {
		t.Fatalf("expected *gpio.Recorder, got %T", drv)
	}
}
