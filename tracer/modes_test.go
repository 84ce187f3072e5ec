package tracer

import "testing"

func TestParseNeeMode(t *testing.T) {
	modes := []NeeMode{NeeOff, NeeOn, NeeMis}
	for _, mode := range modes {
		parsed, err := ParseNeeMode(mode.String())
		if err != nil {
			t.Fatalf("expected no error parsing %q; got %v", mode.String(), err)
		}
		if parsed != mode {
			t.Fatalf("expected %q to parse back to mode %d; got %d", mode.String(), mode, parsed)
		}
	}

	if _, err := ParseNeeMode("bsdf"); err == nil {
		t.Fatalf("expected error for unsupported NEE mode; got nil")
	}
}

func TestParseTonemap(t *testing.T) {
	operators := []Tonemap{
		TonemapNone,
		TonemapReinhard,
		TonemapAces,
		TonemapAcesOverexposed,
		TonemapAcesHill,
		TonemapNeutral,
		TonemapUncharted,
	}
	for _, op := range operators {
		parsed, err := ParseTonemap(op.String())
		if err != nil {
			t.Fatalf("expected no error parsing %q; got %v", op.String(), err)
		}
		if parsed != op {
			t.Fatalf("expected %q to parse back to operator %d; got %d", op.String(), op, parsed)
		}
	}

	if _, err := ParseTonemap("filmic"); err == nil {
		t.Fatalf("expected error for unsupported tone-mapping operator; got nil")
	}
}
