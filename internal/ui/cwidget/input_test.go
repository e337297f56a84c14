package cwidget

import (
	"testing"

	"fyne.io/fyne/v2/test"
)

func TestFloatInput(t *testing.T) {
	test.NewTempApp(t)

	var got float64
	input := NewFloatInput("Threshold", "Enter number", 1.54, func(v float64) { got = v })

	if input.Caption() != "Threshold: 1.54" {
		t.Errorf("initial caption = %q", input.Caption())
	}

	tests := []struct {
		text    string
		want    float64
		caption string
		wantErr bool
	}{
		{text: "1.2", want: 1.2, caption: "Threshold: 1.20"},
		{text: "abc", want: 1.2, caption: "Threshold: 1.20", wantErr: true},
		{text: "-1", want: 1.2, caption: "Threshold: 1.20", wantErr: true},
		{text: "", want: 1.54, caption: "Threshold: 1.54"},
	}

	for _, tt := range tests {
		input.SetText(tt.text)

		if got != tt.want {
			t.Errorf("SetText(%q): value = %v, want %v", tt.text, got, tt.want)
		}
		if input.Caption() != tt.caption {
			t.Errorf("SetText(%q): caption = %q, want %q", tt.text, input.Caption(), tt.caption)
		}
		if (input.ErrorText() != "") != tt.wantErr {
			t.Errorf("SetText(%q): error = %q, wantErr %v", tt.text, input.ErrorText(), tt.wantErr)
		}
	}
}

func TestIntInput(t *testing.T) {
	test.NewTempApp(t)

	var got int
	input := NewIntInput("FPS", "Enter integer", 24, func(v int) { got = v })

	input.SetText("30")
	if got != 30 || input.Caption() != "FPS: 30" {
		t.Errorf("value = %d, caption = %q", got, input.Caption())
	}

	input.SetText("0")
	if got != 30 || input.ErrorText() != ErrZero.Error() {
		t.Errorf("zero: value = %d, error = %q", got, input.ErrorText())
	}
}

func TestInput_Submitted(t *testing.T) {
	test.NewTempApp(t)

	input := NewIntInput("FPS", "", 24, nil)
	var submitted int
	input.OnSubmitted = func(v int) { submitted = v }

	test.NewTempWindow(t, input)

	input.SetText("12")
	input.entryWidget.OnSubmitted(input.entryWidget.Text)

	if submitted != 12 {
		t.Errorf("submitted = %d, want 12", submitted)
	}
}

func TestNonNegativeInt(t *testing.T) {
	parse := NonNegativeInt(3)

	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "", want: 3},
		{in: "0", want: 0},
		{in: "2", want: 2},
		{in: "-1", want: 3, wantErr: true},
		{in: "cam", want: 3, wantErr: true},
	}

	for _, tt := range tests {
		got, err := parse(tt.in)
		if got != tt.want || (err != nil) != tt.wantErr {
			t.Errorf("NonNegativeInt(%q) = %d, %v", tt.in, got, err)
		}
	}
}
