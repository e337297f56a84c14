package cwidget

import (
	"errors"
	"fmt"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

var (
	ErrZero     = errors.New("value must not be zero")
	ErrNegative = errors.New("value must be positive")
)

// Input is a labelled entry that parses its text into T. The label shows the
// last accepted value, the error line the last parse failure.
type Input[T any] struct {
	widget.BaseWidget

	labelWidget *widget.Label
	entryWidget *widget.Entry
	errorWidget *widget.Label

	LabelText   string
	Placeholder string

	DefaultValue T

	OnChanged   func(T)
	OnSubmitted func(T)

	Validator func(string) (T, error)

	format func(T) string
}

func newInput[T any](label, placeholder string, defaultValue T, format func(T) string, onChanged func(T)) *Input[T] {
	input := &Input[T]{
		LabelText:    label,
		Placeholder:  placeholder,
		OnChanged:    onChanged,
		DefaultValue: defaultValue,
		format:       format,
	}

	input.labelWidget = widget.NewLabel(input.caption(defaultValue))
	input.labelWidget.TextStyle = fyne.TextStyle{Bold: true}

	input.entryWidget = widget.NewEntry()
	input.entryWidget.SetPlaceHolder(placeholder)

	input.errorWidget = widget.NewLabel("")
	input.errorWidget.Hidden = true
	input.errorWidget.TextStyle = fyne.TextStyle{Italic: true}
	input.errorWidget.Importance = widget.DangerImportance

	input.entryWidget.OnChanged = func(s string) {
		res, err := input.Validator(s)
		input.SetError(err)

		if err == nil {
			if input.OnChanged != nil {
				input.OnChanged(res)
			}
			input.labelWidget.SetText(input.caption(res))
		}
	}

	input.entryWidget.OnSubmitted = func(s string) {
		res, err := input.Validator(s)
		input.SetError(err)

		if err == nil && input.OnSubmitted != nil {
			input.OnSubmitted(res)
		}
	}

	input.ExtendBaseWidget(input)

	return input
}

func NewIntInput(label, placeholder string, defaultValue int, onChanged func(int)) *Input[int] {
	input := newInput(label, placeholder, defaultValue, strconv.Itoa, onChanged)

	input.Validator = func(s string) (res int, err error) {
		if s == "" {
			return input.DefaultValue, nil
		}

		res, err = strconv.Atoi(s)
		if err != nil {
			return input.DefaultValue, err
		}

		if res == 0 {
			return input.DefaultValue, ErrZero
		}

		return
	}

	return input
}

// NewFloatInput accepts positive decimals; an empty entry restores the default.
func NewFloatInput(label, placeholder string, defaultValue float64, onChanged func(float64)) *Input[float64] {
	format := func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
	input := newInput(label, placeholder, defaultValue, format, onChanged)

	input.Validator = func(s string) (float64, error) {
		if s == "" {
			return input.DefaultValue, nil
		}

		res, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return input.DefaultValue, err
		}

		if res <= 0 {
			return input.DefaultValue, ErrNegative
		}

		return res, nil
	}

	return input
}

// NonNegativeInt parses integers that may be zero, such as device ids.
func NonNegativeInt(defaultValue int) func(string) (int, error) {
	return func(s string) (int, error) {
		if s == "" {
			return defaultValue, nil
		}

		res, err := strconv.Atoi(s)
		if err != nil {
			return defaultValue, err
		}

		if res < 0 {
			return defaultValue, ErrNegative
		}

		return res, nil
	}
}

func (item *Input[T]) caption(v T) string {
	return fmt.Sprintf("%s: %s", item.LabelText, item.format(v))
}

func (item *Input[T]) CreateRenderer() fyne.WidgetRenderer {
	c := container.NewVBox(
		item.labelWidget,
		item.entryWidget,
		item.errorWidget,
	)

	return widget.NewSimpleRenderer(c)
}

func (item *Input[T]) SetError(err error) {
	item.errorWidget.Hidden = err == nil
	if err != nil {
		item.errorWidget.SetText(err.Error())
	}
	item.errorWidget.Refresh()
}

func (item *Input[T]) SetText(text string) {
	item.entryWidget.SetText(text)
}

// Caption returns the label text currently shown above the entry.
func (item *Input[T]) Caption() string {
	return item.labelWidget.Text
}

// ErrorText returns the visible error message, or "" when the input is valid.
func (item *Input[T]) ErrorText() string {
	if item.errorWidget.Hidden {
		return ""
	}
	return item.errorWidget.Text
}
