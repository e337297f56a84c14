package models

import (
	"errors"
	"image"
	"testing"
)

func TestBox_Grow(t *testing.T) {
	b := Box{X1: 10, Y1: 20, X2: 50, Y2: 80}

	got := b.Grow(1)
	want := Box{X1: 9, Y1: 19, X2: 51, Y2: 81}
	if got != want {
		t.Errorf("Grow(1) = %+v, want %+v", got, want)
	}

	if r := got.Rect(); r != image.Rect(9, 19, 51, 81) {
		t.Errorf("Rect() = %v", r)
	}
	if a := b.Area(); a != 40*60 {
		t.Errorf("Area() = %d, want %d", a, 40*60)
	}
}

func TestOutcomeConstructors(t *testing.T) {
	if k := Faces(nil).Kind; k != OutcomeNoFaces {
		t.Errorf("Faces(nil).Kind = %v, want %v", k, OutcomeNoFaces)
	}

	o := Faces([]Detection{{Identity: 0, Name: "Alice"}})
	if o.Kind != OutcomeFaces || len(o.Detections) != 1 {
		t.Errorf("Faces() = %+v", o)
	}

	f := Failed(errors.New("boom"))
	if f.Kind != OutcomeError || f.Err == nil {
		t.Errorf("Failed() = %+v", f)
	}
	if f.Kind.String() != "error" {
		t.Errorf("String() = %q", f.Kind.String())
	}
}
