// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package imagecache

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register gif format
	_ "image/jpeg" // register jpeg format
	_ "image/png"  // register png format

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"  // register bmp format
	_ "golang.org/x/image/tiff" // register tiff format
	_ "golang.org/x/image/webp" // register webp format
	"willnorris.com/go/imagecache/data"
)

// A Decoder turns encoded image bytes into a buffer holding the image
// transformed as opt describes.
type Decoder interface {
	Decode(raw []byte, opt data.Options) (*data.Buffer, error)
}

// An Acquirer hands out recycled buffers.  It is satisfied by *Cache.
type Acquirer interface {
	Acquire(data.Shape) (*data.Buffer, bool)
}

// ImageDecoder decodes gif, jpeg, png, bmp, tiff, and webp images, honoring
// EXIF orientation before applying transformation options.
type ImageDecoder struct {
	// Pool, if set, supplies recycled buffers to decode into.
	Pool Acquirer
}

// Decode implements Decoder.
func (d ImageDecoder) Decode(raw []byte, opt data.Options) (*data.Buffer, error) {
	m, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	if format == "jpeg" || format == "tiff" {
		m = orient(m, exifOrientation(raw))
	}
	m = transformImage(m, opt)

	shape := data.Shape{Width: m.Bounds().Dx(), Height: m.Bounds().Dy()}
	if d.Pool != nil {
		if b, ok := d.Pool.Acquire(shape); ok {
			if err := b.Draw(m); err != nil {
				return nil, err
			}
			return b, nil
		}
	}
	return data.WrapNRGBA(imaging.Clone(m)), nil
}

// Exif Orientation Tag values
// http://sylvana.net/jpegcrop/exif_orientation.html
const (
	topLeftSide     = 1
	topRightSide    = 2
	bottomRightSide = 3
	bottomLeftSide  = 4
	leftSideTop     = 5
	rightSideTop    = 6
	rightSideBottom = 7
	leftSideBottom  = 8
)

// exifOrientation returns the EXIF orientation of raw, or topLeftSide if
// there is none.
func exifOrientation(raw []byte) int {
	ex, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return topLeftSide
	}
	tag, err := ex.Get(exif.Orientation)
	if err != nil {
		return topLeftSide
	}
	o, err := tag.Int(0)
	if err != nil {
		return topLeftSide
	}
	return o
}

// orient transforms m so that it displays upright given its EXIF
// orientation.
func orient(m image.Image, orientation int) image.Image {
	switch orientation {
	case topRightSide:
		return imaging.FlipH(m)
	case bottomRightSide:
		return imaging.Rotate180(m)
	case bottomLeftSide:
		return imaging.FlipV(m)
	case leftSideTop:
		return imaging.Transpose(m)
	case rightSideTop:
		return imaging.Rotate270(m)
	case rightSideBottom:
		return imaging.Transverse(m)
	case leftSideBottom:
		return imaging.Rotate90(m)
	}
	return m
}
