package voc

import "testing"

func TestBaseline_firstSampleIsNeutral(t *testing.T) {
	b := NewBaseline(DefaultAlpha, DefaultScale)
	if got := b.Process(30000); got != 100 {
		t.Errorf("first Process = %d; want 100", got)
	}
	if v, ok := b.Value(); !ok || v != 30000 {
		t.Errorf("Value() = %v, %v; want 30000, true", v, ok)
	}
}

func TestBaseline_steadySignalStaysNeutral(t *testing.T) {
	b := NewBaseline(DefaultAlpha, DefaultScale)
	for i := 0; i < 100; i++ {
		if got := b.Process(25000); got != 100 {
			t.Fatalf("Process #%d = %d; want 100", i, got)
		}
	}
}

func TestBaseline_direction(t *testing.T) {
	b := NewBaseline(DefaultAlpha, DefaultScale)
	b.Process(20000)

	if got := b.Process(24000); got <= 100 {
		t.Errorf("Process above baseline = %d; want > 100", got)
	}
	if got := b.Process(16000); got >= 100 {
		t.Errorf("Process below baseline = %d; want < 100", got)
	}
}

func TestBaseline_clamped(t *testing.T) {
	b := NewBaseline(DefaultAlpha, DefaultScale)
	b.Process(100)
	for _, raw := range []uint16{0, 1, 65535} {
		got := b.Process(raw)
		if got < 0 || got > 500 {
			t.Errorf("Process(%d) = %d; want within [0, 500]", raw, got)
		}
	}
}

func TestBaseline_zeroBaseline(t *testing.T) {
	b := NewBaseline(DefaultAlpha, DefaultScale)
	b.Process(0)
	if got := b.Process(0); got != 100 {
		t.Errorf("Process(0) on zero baseline = %d; want 100", got)
	}
}

func TestBaseline_implementsAlgorithm(t *testing.T) {
	var _ Algorithm = NewBaseline(DefaultAlpha, DefaultScale)
}
