package style

import (
	"image"
	"image/draw"
	"math"
)

// ToRGBA returns a newly allocated, opaque RGBA copy of img whose bounds
// start at the origin. Pipelines only accept images in this layout.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Rect)
	copy(dst.Pix, src.Pix)
	return dst
}

// reflect101 maps i into [0, n) mirroring around the edges without
// repeating the border pixel (gfedcb|abcdefgh|gfedcba).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// saturate rounds half to even and clamps to the 8-bit range.
func saturate(v float64) uint8 {
	v = math.RoundToEven(v)
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

// grayscale converts with the BT.601 luma weights in 14-bit fixed point.
func grayscale(src *image.RGBA) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for i, j := 0, 0; j < len(dst.Pix); i, j = i+4, j+1 {
		r, g, b := uint32(src.Pix[i]), uint32(src.Pix[i+1]), uint32(src.Pix[i+2])
		dst.Pix[j] = uint8((r*4899 + g*9617 + b*1868 + 8192) >> 14)
	}
	return dst
}

func grayToRGBA(src *image.Gray) *image.RGBA {
	dst := image.NewRGBA(src.Rect)
	for i, j := 0, 0; i < len(src.Pix); i, j = i+1, j+4 {
		v := src.Pix[i]
		dst.Pix[j], dst.Pix[j+1], dst.Pix[j+2], dst.Pix[j+3] = v, v, v, 0xff
	}
	return dst
}

func invertGray(src *image.Gray) *image.Gray {
	dst := image.NewGray(src.Rect)
	for i, v := range src.Pix {
		dst.Pix[i] = 255 - v
	}
	return dst
}

// gaussianKernel builds a normalized 1-D kernel. A non-positive sigma is
// derived from the size as 0.3*((size-1)/2-1)+0.8.
func gaussianKernel(size int, sigma float64) []float64 {
	if sigma <= 0 {
		sigma = 0.3*(float64(size-1)*0.5-1) + 0.8
	}
	k := make([]float64, size)
	half := size / 2
	var sum float64
	for i := range k {
		x := float64(i - half)
		k[i] = math.Exp(-x * x / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// kernelForSigma sizes a kernel to cover three standard deviations.
func kernelForSigma(sigma float64) []float64 {
	r := int(math.Ceil(3 * sigma))
	if r < 1 {
		r = 1
	}
	return gaussianKernel(2*r+1, sigma)
}

// convolve applies a separable kernel to the first nc channels of an
// interleaved 8-bit buffer with bpp bytes per pixel. Channels past nc are
// set to 255.
func convolve(pix []uint8, w, h, bpp, nc int, k []float64) []uint8 {
	half := len(k) / 2
	tmp := make([]float64, w*h*nc)

	xs := make([]int, len(k))
	for y := 0; y < h; y++ {
		row := y * w * bpp
		for x := 0; x < w; x++ {
			for t := range k {
				xs[t] = reflect101(x+t-half, w)
			}
			for c := 0; c < nc; c++ {
				var acc float64
				for t, kv := range k {
					acc += kv * float64(pix[row+xs[t]*bpp+c])
				}
				tmp[(y*w+x)*nc+c] = acc
			}
		}
	}

	out := make([]uint8, len(pix))
	ys := make([]int, len(k))
	for y := 0; y < h; y++ {
		for t := range k {
			ys[t] = reflect101(y+t-half, h)
		}
		for x := 0; x < w; x++ {
			o := (y*w + x) * bpp
			for c := 0; c < nc; c++ {
				var acc float64
				for t, kv := range k {
					acc += kv * tmp[(ys[t]*w+x)*nc+c]
				}
				out[o+c] = saturate(acc)
			}
			for c := nc; c < bpp; c++ {
				out[o+c] = 0xff
			}
		}
	}
	return out
}

func gaussianBlurGray(src *image.Gray, k []float64) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	return &image.Gray{Pix: convolve(src.Pix, w, h, 1, 1, k), Stride: w, Rect: src.Rect}
}

func gaussianBlurRGBA(src *image.RGBA, k []float64) *image.RGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	return &image.RGBA{Pix: convolve(src.Pix, w, h, 4, 3, k), Stride: 4 * w, Rect: src.Rect}
}

// bilateral is an edge-preserving smoothing filter. Neighbors inside a
// circular window of diameter d are weighted by spatial distance and by the
// L1 distance between their colors.
func bilateral(src *image.RGBA, d int, sigmaColor, sigmaSpace float64) *image.RGBA {
	if sigmaColor <= 0 {
		sigmaColor = 1
	}
	if sigmaSpace <= 0 {
		sigmaSpace = 1
	}
	radius := d / 2
	if d <= 0 {
		radius = int(math.Round(sigmaSpace * 1.5))
	}
	if radius < 1 {
		radius = 1
	}

	colorCoeff := -0.5 / (sigmaColor * sigmaColor)
	spaceCoeff := -0.5 / (sigmaSpace * sigmaSpace)

	colorWeight := make([]float64, 3*256)
	for i := range colorWeight {
		colorWeight[i] = math.Exp(float64(i*i) * colorCoeff)
	}

	type offset struct {
		dx, dy int
		w      float64
	}
	var offsets []offset
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			r2 := float64(dx*dx + dy*dy)
			if r2 > float64(radius*radius) {
				continue
			}
			offsets = append(offsets, offset{dx: dx, dy: dy, w: math.Exp(r2 * spaceCoeff)})
		}
	}

	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewRGBA(src.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := (y*w + x) * 4
			r0, g0, b0 := int(src.Pix[c]), int(src.Pix[c+1]), int(src.Pix[c+2])
			var sr, sg, sb, wsum float64
			for _, o := range offsets {
				n := (reflect101(y+o.dy, h)*w + reflect101(x+o.dx, w)) * 4
				r, g, b := int(src.Pix[n]), int(src.Pix[n+1]), int(src.Pix[n+2])
				wt := o.w * colorWeight[absInt(r-r0)+absInt(g-g0)+absInt(b-b0)]
				sr += wt * float64(r)
				sg += wt * float64(g)
				sb += wt * float64(b)
				wsum += wt
			}
			dst.Pix[c] = saturate(sr / wsum)
			dst.Pix[c+1] = saturate(sg / wsum)
			dst.Pix[c+2] = saturate(sb / wsum)
			dst.Pix[c+3] = 0xff
		}
	}
	return dst
}

// adaptiveThreshold binarizes src against the rounded mean of a block x
// block neighborhood minus c. Pixels brighter than the local threshold
// become 255, the rest (outlines) become 0.
func adaptiveThreshold(src *image.Gray, block int, c float64) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	half := block / 2
	area := float64(block * block)

	rows := make([]int, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := 0
			for t := -half; t <= half; t++ {
				s += int(src.Pix[y*w+clampIndex(x+t, w)])
			}
			rows[y*w+x] = s
		}
	}

	delta := int(math.Ceil(c))
	dst := image.NewGray(src.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := 0
			for t := -half; t <= half; t++ {
				s += rows[clampIndex(y+t, h)*w+x]
			}
			mean := int(saturate(float64(s) / area))
			if int(src.Pix[y*w+x])-mean > -delta {
				dst.Pix[y*w+x] = 255
			}
		}
	}
	return dst
}

// maskAnd performs a per-channel 8-bit AND of src with a single-channel
// mask replicated to three channels.
func maskAnd(src *image.RGBA, mask *image.Gray) *image.RGBA {
	dst := image.NewRGBA(src.Rect)
	for i, j := 0, 0; j < len(mask.Pix); i, j = i+4, j+1 {
		m := mask.Pix[j]
		dst.Pix[i] = src.Pix[i] & m
		dst.Pix[i+1] = src.Pix[i+1] & m
		dst.Pix[i+2] = src.Pix[i+2] & m
		dst.Pix[i+3] = 0xff
	}
	return dst
}

// divideScaled computes round(a*scale/b) clamped to 8 bits. A zero divisor
// saturates to white.
func divideScaled(a, b *image.Gray, scale float64) *image.Gray {
	dst := image.NewGray(a.Rect)
	for i := range a.Pix {
		if b.Pix[i] == 0 {
			dst.Pix[i] = 255
			continue
		}
		dst.Pix[i] = saturate(float64(a.Pix[i]) * scale / float64(b.Pix[i]))
	}
	return dst
}

// scaleAbs computes |v*alpha + beta| per channel, saturated to 8 bits.
func scaleAbs(src *image.RGBA, alpha, beta float64) *image.RGBA {
	var lut [256]uint8
	for i := range lut {
		lut[i] = saturate(math.Abs(float64(i)*alpha + beta))
	}
	dst := image.NewRGBA(src.Rect)
	for i := 0; i < len(src.Pix); i += 4 {
		dst.Pix[i] = lut[src.Pix[i]]
		dst.Pix[i+1] = lut[src.Pix[i+1]]
		dst.Pix[i+2] = lut[src.Pix[i+2]]
		dst.Pix[i+3] = 0xff
	}
	return dst
}

// saturation blends each pixel with its luma. A factor of 1 returns the
// input colors, larger factors push colors away from gray.
func saturation(src *image.RGBA, factor float64) *image.RGBA {
	dst := image.NewRGBA(src.Rect)
	for i := 0; i < len(src.Pix); i += 4 {
		r, g, b := uint32(src.Pix[i]), uint32(src.Pix[i+1]), uint32(src.Pix[i+2])
		l := float64((r*19595 + g*38470 + b*7471 + 0x8000) >> 16)
		for c := 0; c < 3; c++ {
			v := l + factor*(float64(src.Pix[i+c])-l)
			switch {
			case v <= 0:
				dst.Pix[i+c] = 0
			case v >= 255:
				dst.Pix[i+c] = 255
			default:
				dst.Pix[i+c] = uint8(v)
			}
		}
		dst.Pix[i+3] = 0xff
	}
	return dst
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
