package style

import (
	"image"
	"sort"
)

type colorCount struct {
	rgb   [3]uint8
	count int
}

type colorBox struct {
	colors []colorCount
	pixels int
}

// widest returns the channel with the largest range and that range.
func (b *colorBox) widest() (channel, spread int) {
	for c := 0; c < 3; c++ {
		lo, hi := 255, 0
		for _, cc := range b.colors {
			v := int(cc.rgb[c])
			lo = min(lo, v)
			hi = max(hi, v)
		}
		if hi-lo > spread {
			channel, spread = c, hi-lo
		}
	}
	return channel, spread
}

// split cuts the box at the pixel-weighted median of its widest channel.
func (b *colorBox) split() (colorBox, colorBox) {
	ch, _ := b.widest()
	sort.Slice(b.colors, func(i, j int) bool {
		if b.colors[i].rgb[ch] != b.colors[j].rgb[ch] {
			return b.colors[i].rgb[ch] < b.colors[j].rgb[ch]
		}
		return packRGB(b.colors[i].rgb) < packRGB(b.colors[j].rgb)
	})

	cut, acc := 1, 0
	for i, cc := range b.colors[:len(b.colors)-1] {
		acc += cc.count
		cut = i + 1
		if acc*2 >= b.pixels {
			break
		}
	}

	left := colorBox{colors: b.colors[:cut]}
	right := colorBox{colors: b.colors[cut:]}
	for _, cc := range left.colors {
		left.pixels += cc.count
	}
	right.pixels = b.pixels - left.pixels
	return left, right
}

func (b *colorBox) mean() [3]uint8 {
	var sum [3]int
	for _, cc := range b.colors {
		for c := 0; c < 3; c++ {
			sum[c] += int(cc.rgb[c]) * cc.count
		}
	}
	var out [3]uint8
	for c := 0; c < 3; c++ {
		out[c] = uint8((sum[c] + b.pixels/2) / b.pixels)
	}
	return out
}

func packRGB(c [3]uint8) uint32 {
	return uint32(c[0])<<16 | uint32(c[1])<<8 | uint32(c[2])
}

// quantizeMedianCut reduces src to at most n colors with median cut and
// maps each pixel straight back to full RGB.
func quantizeMedianCut(src *image.RGBA, n int) *image.RGBA {
	hist := make(map[uint32]int)
	for i := 0; i < len(src.Pix); i += 4 {
		hist[packRGB([3]uint8{src.Pix[i], src.Pix[i+1], src.Pix[i+2]})]++
	}

	root := colorBox{colors: make([]colorCount, 0, len(hist))}
	for k, v := range hist {
		root.colors = append(root.colors, colorCount{
			rgb:   [3]uint8{uint8(k >> 16), uint8(k >> 8), uint8(k)},
			count: v,
		})
		root.pixels += v
	}
	sort.Slice(root.colors, func(i, j int) bool {
		return packRGB(root.colors[i].rgb) < packRGB(root.colors[j].rgb)
	})

	boxes := []colorBox{root}
	for len(boxes) < n {
		pick, pickSpread := -1, 0
		for i := range boxes {
			if len(boxes[i].colors) < 2 {
				continue
			}
			_, s := boxes[i].widest()
			if s > pickSpread || (s == pickSpread && pick >= 0 && boxes[i].pixels > boxes[pick].pixels) {
				pick, pickSpread = i, s
			}
		}
		if pick < 0 {
			break
		}
		l, r := boxes[pick].split()
		boxes[pick] = l
		boxes = append(boxes, r)
	}

	lookup := make(map[uint32][3]uint8, len(hist))
	for i := range boxes {
		m := boxes[i].mean()
		for _, cc := range boxes[i].colors {
			lookup[packRGB(cc.rgb)] = m
		}
	}

	dst := image.NewRGBA(src.Rect)
	for i := 0; i < len(src.Pix); i += 4 {
		c := lookup[packRGB([3]uint8{src.Pix[i], src.Pix[i+1], src.Pix[i+2]})]
		dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = c[0], c[1], c[2], 0xff
	}
	return dst
}
