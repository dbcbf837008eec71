// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package data

import (
	"fmt"
	"image"
	"image/draw"
)

// Shape describes the pixel dimensions of a Buffer.  Buffers with the same
// shape are interchangeable as decode targets.
type Shape struct {
	Width, Height int
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Size returns the bytes of pixel storage needed for a buffer of shape s.
func (s Shape) Size() int64 {
	return int64(s.Width) * int64(s.Height) * 4
}

// Buffer is a decoded image held in memory.  A Buffer's identity is its
// pointer: reference counting and pool membership track *Buffer values, and
// the Buffer itself never knows how many holders it has.
type Buffer struct {
	img *image.NRGBA
}

// NewBuffer allocates a zeroed buffer of the given shape.
func NewBuffer(s Shape) *Buffer {
	return &Buffer{img: image.NewNRGBA(image.Rect(0, 0, s.Width, s.Height))}
}

// WrapNRGBA returns a Buffer backed by img.  The buffer takes ownership of
// img's pixels.
func WrapNRGBA(img *image.NRGBA) *Buffer {
	if img.Rect.Min != (image.Point{}) {
		img = &image.NRGBA{
			Pix:    img.Pix,
			Stride: img.Stride,
			Rect:   image.Rect(0, 0, img.Rect.Dx(), img.Rect.Dy()),
		}
	}
	return &Buffer{img: img}
}

// Width of the buffer in pixels.
func (b *Buffer) Width() int { return b.img.Rect.Dx() }

// Height of the buffer in pixels.
func (b *Buffer) Height() int { return b.img.Rect.Dy() }

// Shape returns the buffer's dimensions.
func (b *Buffer) Shape() Shape {
	return Shape{Width: b.Width(), Height: b.Height()}
}

// AllocationSize returns the bytes of pixel storage held by the buffer.  This
// is the size used for cache capacity accounting.
func (b *Buffer) AllocationSize() int64 {
	return int64(len(b.img.Pix))
}

// Image returns the buffer as an image.Image.  Callers must not retain the
// result after releasing the buffer.
func (b *Buffer) Image() *image.NRGBA {
	return b.img
}

// Draw replaces the buffer's pixels with src, which must have the buffer's
// shape.
func (b *Buffer) Draw(src image.Image) error {
	if got := (Shape{src.Bounds().Dx(), src.Bounds().Dy()}); got != b.Shape() {
		return fmt.Errorf("draw %v image into %v buffer", got, b.Shape())
	}
	draw.Draw(b.img, b.img.Rect, src, src.Bounds().Min, draw.Src)
	return nil
}

// Reset zeroes the buffer's pixels.
func (b *Buffer) Reset() {
	clear(b.img.Pix)
}
