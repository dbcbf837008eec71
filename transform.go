// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package imagecache

import (
	"image"

	"github.com/disintegration/imaging"
	"willnorris.com/go/imagecache/data"
)

// resampleFilter is used when resizing images.
var resampleFilter = imaging.Lanczos

// transformImage modifies the image m based on the transformations specified
// in opt.  Images are resized first, then rotated, then flipped.
func transformImage(m image.Image, opt data.Options) image.Image {
	// resize
	if w, h, resize := resizeParams(m, opt); resize {
		switch {
		case opt.Fit:
			m = imaging.Fit(m, w, h, resampleFilter)
		case w == 0 || h == 0:
			m = imaging.Resize(m, w, h, resampleFilter)
		default:
			m = imaging.Thumbnail(m, w, h, resampleFilter)
		}
	}

	// rotate
	switch ((opt.Rotate % 360) + 360) % 360 {
	case 90:
		m = imaging.Rotate90(m)
	case 180:
		m = imaging.Rotate180(m)
	case 270:
		m = imaging.Rotate270(m)
	}

	// flip
	if opt.FlipVertical {
		m = imaging.FlipV(m)
	}
	if opt.FlipHorizontal {
		m = imaging.FlipH(m)
	}

	return m
}

// resizeParams determines if the image needs to be resized, and if so, the
// dimensions to resize to.  Width and height values between 0 and 1 are
// fractions of the original size.
func resizeParams(m image.Image, opt data.Options) (w, h int, resize bool) {
	// convert percentage width and height values to absolute values
	imgW := m.Bounds().Dx()
	imgH := m.Bounds().Dy()
	if 0 < opt.Width && opt.Width < 1 {
		w = int(float64(imgW) * opt.Width)
	} else if opt.Width > 0 {
		w = int(opt.Width)
	}
	if 0 < opt.Height && opt.Height < 1 {
		h = int(float64(imgH) * opt.Height)
	} else if opt.Height > 0 {
		h = int(opt.Height)
	}

	// never resize larger than the original image
	if w > imgW {
		w = imgW
	}
	if h > imgH {
		h = imgH
	}

	// if requested width and height match the original, skip resizing
	if (w == imgW || w == 0) && (h == imgH || h == 0) {
		return 0, 0, false
	}
	return w, h, true
}
