package style

import (
	"errors"
	"image"
)

// ErrInvalidBrush is returned when the oil painting brush parameters are not positive.
var ErrInvalidBrush = errors.New("oil painting: radius and dynamic ratio must be positive")

// oilPaint simulates brush strokes. For every pixel the intensities inside
// a (2*radius+1)^2 window are binned by gray/dynRatio, and the pixel takes
// the mean color of the most populated bin.
func oilPaint(src *image.RGBA, radius, dynRatio int) (*image.RGBA, error) {
	if radius <= 0 || dynRatio <= 0 {
		return nil, ErrInvalidBrush
	}

	w, h := src.Rect.Dx(), src.Rect.Dy()
	gray := grayscale(src)
	levels := 256/dynRatio + 1
	bin := make([]int, len(gray.Pix))
	for i, v := range gray.Pix {
		bin[i] = int(v) / dynRatio
	}

	counts := make([]int, levels)
	sums := make([][3]int, levels)
	update := func(x, y, sign int) {
		p := y*w + x
		b := bin[p]
		counts[b] += sign
		sums[b][0] += sign * int(src.Pix[p*4])
		sums[b][1] += sign * int(src.Pix[p*4+1])
		sums[b][2] += sign * int(src.Pix[p*4+2])
	}
	column := func(x, y, sign int) {
		cx := clampIndex(x, w)
		for dy := -radius; dy <= radius; dy++ {
			update(cx, clampIndex(y+dy, h), sign)
		}
	}

	dst := image.NewRGBA(src.Rect)
	for y := 0; y < h; y++ {
		clear(counts)
		clear(sums)
		for dx := -radius; dx <= radius; dx++ {
			column(dx, y, 1)
		}
		for x := 0; x < w; x++ {
			if x > 0 {
				column(x-radius-1, y, -1)
				column(x+radius, y, 1)
			}
			top := 0
			for b := 1; b < levels; b++ {
				if counts[b] > counts[top] {
					top = b
				}
			}
			n := float64(counts[top])
			o := (y*w + x) * 4
			dst.Pix[o] = saturate(float64(sums[top][0]) / n)
			dst.Pix[o+1] = saturate(float64(sums[top][1]) / n)
			dst.Pix[o+2] = saturate(float64(sums[top][2]) / n)
			dst.Pix[o+3] = 0xff
		}
	}
	return dst, nil
}
