package engine

import (
	"errors"
	"fmt"
	"testing"
)

func TestPresetByID(t *testing.T) {
	for _, want := range Presets() {
		got, ok := PresetByID(want.ID)
		if !ok {
			t.Fatalf("PresetByID(%q) not found", want.ID)
		}
		if got != want {
			t.Fatalf("PresetByID(%q) = %+v, want %+v", want.ID, got, want)
		}
	}
	if _, ok := PresetByID("huge"); ok {
		t.Fatal("unknown preset id resolved")
	}
}

func TestPresetsOrder(t *testing.T) {
	ps := Presets()
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	want := []string{"tiny", "small", "medium", "large"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Fatalf("preset order = %v, want %v", ids, want)
	}
	for i := 1; i < len(ps); i++ {
		if ps[i].TargetDPI <= ps[i-1].TargetDPI {
			t.Fatalf("presets not ordered by density: %v", ids)
		}
		if ps[i].JPEGQuality <= ps[i-1].JPEGQuality {
			t.Fatalf("presets not ordered by quality: %v", ids)
		}
	}
}

func TestProcessingErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := error(&ProcessingError{Detail: "extract images", Err: inner})
	if !errors.Is(err, inner) {
		t.Fatal("ProcessingError must unwrap to its cause")
	}

	var pe *ProcessingError
	if !errors.As(err, &pe) || pe.Detail != "extract images" {
		t.Fatalf("errors.As failed: %v", err)
	}
}

func TestUnsupportedDocumentError(t *testing.T) {
	err := error(&UnsupportedDocumentError{Reason: "encrypted"})
	var ue *UnsupportedDocumentError
	if !errors.As(err, &ue) || ue.Reason != "encrypted" {
		t.Fatalf("errors.As failed: %v", err)
	}
	if err.Error() != "unsupported document: encrypted" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestSamePath(t *testing.T) {
	if !SamePath("doc.pdf", "doc.pdf") {
		t.Fatal("identical paths must match")
	}
	if !SamePath("doc.pdf", "./doc.pdf") {
		t.Fatal("relative spellings of the same file must match")
	}
	if SamePath("a.pdf", "b.pdf") {
		t.Fatal("distinct files matched")
	}
}

func TestSentinelsDistinct(t *testing.T) {
	sentinels := []error{ErrEngineUnavailable, ErrInputNotFound, ErrOutputWrite}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if (i == j) != errors.Is(a, b) {
				t.Fatalf("sentinel identity broken for %v / %v", a, b)
			}
		}
	}
}
