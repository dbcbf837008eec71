// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package data

import (
	"image"
	"image/color"
	"testing"
)

var emptyOptions = Options{}

func TestOptions_String(t *testing.T) {
	tests := []struct {
		Options Options
		String  string
	}{
		{
			emptyOptions,
			"0x0",
		},
		{
			Options{Width: 1, Height: 2, Fit: true, Rotate: 90, FlipVertical: true, FlipHorizontal: true},
			"1x2,fh,fit,fv,r90",
		},
		{
			Options{Width: 0.15, Height: 1.3, Rotate: 45},
			"0.15x1.3,r45",
		},
	}

	for i, tt := range tests {
		if got, want := tt.Options.String(), tt.String; got != want {
			t.Errorf("%d. Options.String returned %v, want %v", i, got, want)
		}
	}
}

func TestParseOptions(t *testing.T) {
	tests := []struct {
		Input   string
		Options Options
	}{
		{"", emptyOptions},
		{"x", emptyOptions},
		{"r", emptyOptions},
		{"0", emptyOptions},
		{",,,,", emptyOptions},

		// size variations
		{"1x", Options{Width: 1}},
		{"x1", Options{Height: 1}},
		{"1x2", Options{Width: 1, Height: 2}},
		{"-1x-2", Options{Width: -1, Height: -2}},
		{"0.1x0.2", Options{Width: 0.1, Height: 0.2}},
		{"1", Options{Width: 1, Height: 1}},
		{"0.1", Options{Width: 0.1, Height: 0.1}},

		// additional flags
		{"fit", Options{Fit: true}},
		{"r90", Options{Rotate: 90}},
		{"fv", Options{FlipVertical: true}},
		{"fh", Options{FlipHorizontal: true}},

		// duplicate flags (last one wins)
		{"1x2,3x4", Options{Width: 3, Height: 4}},
		{"1x2,3", Options{Width: 3, Height: 3}},
		{"1x2,0x3", Options{Width: 0, Height: 3}},
		{"1x,x2", Options{Width: 1, Height: 2}},
		{"r90,r270", Options{Rotate: 270}},

		// mix of valid and invalid flags
		{"FOO,1,BAR,r90,BAZ", Options{Width: 1, Height: 1, Rotate: 90}},

		// flags, in different orders
		{"1x2,fit,r90,fv,fh", Options{Width: 1, Height: 2, Fit: true, Rotate: 90, FlipVertical: true, FlipHorizontal: true}},
		{"r90,fh,1x2,fv,fit", Options{Width: 1, Height: 2, Fit: true, Rotate: 90, FlipVertical: true, FlipHorizontal: true}},
	}

	for _, tt := range tests {
		if got, want := ParseOptions(tt.Input), tt.Options; got != want {
			t.Errorf("ParseOptions(%q) returned %#v, want %#v", tt.Input, got, want)
		}
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		key    Key
		string string
	}{
		{NewKey("http://example.com/a.png"), "http://example.com/a.png"},
		{Key{URL: "http://example.com/a.png", Options: Options{Width: 100}}, "http://example.com/a.png#100x0"},
		{Key{URL: "/tmp/a.png", Options: Options{Width: 1, Height: 2, Rotate: 90}}, "/tmp/a.png#1x2,r90"},
	}

	for _, tt := range tests {
		if got := tt.key.String(); got != tt.string {
			t.Errorf("%#v.String() returned %q, want %q", tt.key, got, tt.string)
		}
		if got := ParseKey(tt.string); got != tt.key {
			t.Errorf("ParseKey(%q) returned %#v, want %#v", tt.string, got, tt.key)
		}
	}
}

func TestKey_Digest(t *testing.T) {
	a := NewKey("http://example.com/a.png")
	b := Key{URL: "http://example.com/a.png", Options: Options{Width: 100}}

	if got, want := a.Digest(), "b876851593b9e119ed73f38561576bda"; got != want {
		t.Errorf("Digest() returned %q, want %q", got, want)
	}
	if a.Digest() != NewKey("http://example.com/a.png").Digest() {
		t.Errorf("Digest() is not stable for equal keys")
	}
	if a.Digest() == b.Digest() {
		t.Errorf("keys with different options share digest %q", a.Digest())
	}
}

func TestBuffer(t *testing.T) {
	b := NewBuffer(Shape{Width: 3, Height: 2})
	if got, want := b.AllocationSize(), int64(3*2*4); got != want {
		t.Errorf("AllocationSize() returned %d, want %d", got, want)
	}
	if got, want := b.Shape(), (Shape{3, 2}); got != want {
		t.Errorf("Shape() returned %v, want %v", got, want)
	}
	if got, want := b.Shape().Size(), b.AllocationSize(); got != want {
		t.Errorf("Shape().Size() returned %d, want %d", got, want)
	}

	src := image.NewNRGBA(image.Rect(10, 10, 13, 12))
	src.Set(10, 10, color.NRGBA{255, 0, 0, 255})
	if err := b.Draw(src); err != nil {
		t.Fatalf("Draw returned error: %v", err)
	}
	if got, want := b.Image().NRGBAAt(0, 0), (color.NRGBA{255, 0, 0, 255}); got != want {
		t.Errorf("pixel after Draw is %v, want %v", got, want)
	}

	b.Reset()
	if got := b.Image().NRGBAAt(0, 0); got != (color.NRGBA{}) {
		t.Errorf("pixel after Reset is %v, want zero", got)
	}

	if err := b.Draw(image.NewNRGBA(image.Rect(0, 0, 1, 1))); err == nil {
		t.Errorf("Draw of mismatched shape returned nil error")
	}
}

func TestWrapNRGBA(t *testing.T) {
	src := image.NewNRGBA(image.Rect(5, 5, 9, 7))
	b := WrapNRGBA(src)
	if got, want := b.Image().Rect, image.Rect(0, 0, 4, 2); got != want {
		t.Errorf("WrapNRGBA rect is %v, want %v", got, want)
	}
}
