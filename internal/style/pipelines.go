package style

import (
	"image"
	"math/rand/v2"
)

// Pipeline transforms an origin-anchored RGBA image (see ToRGBA) into a
// newly allocated image of the same size. It must not modify src.
type Pipeline func(src *image.RGBA) (*image.RGBA, error)

const (
	thresholdBlock = 7
	thresholdC     = 7
	sketchKernel   = 111
	sketchScale    = 256.0
	oilRadius      = 7
	oilDynRatio    = 1
	paletteColors  = 16
)

// Library returns the six style pipelines. Pipelines that cluster colors
// draw their random restarts from a PRNG seeded with seed on every call, so
// equal inputs always give equal outputs.
func Library(seed uint64) map[Style]Pipeline {
	return map[Style]Pipeline{
		Ghibli:      ghibli,
		Cartoon:     cartoon(seed),
		Sketch:      sketch,
		OilPainting: oilPainting,
		Watercolor:  watercolor,
		Anime:       anime(seed),
	}
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func ghibli(src *image.RGBA) (*image.RGBA, error) {
	out := bilateral(src, 15, 50, 50)
	out = scaleAbs(out, 1.2, 10)
	out = saturation(out, 1.3)
	return gaussianBlurRGBA(out, kernelForSigma(0.5)), nil
}

func cartoon(seed uint64) Pipeline {
	return func(src *image.RGBA) (*image.RGBA, error) {
		edges := adaptiveThreshold(grayscale(src), thresholdBlock, thresholdC)
		quantized, err := quantizeKMeans(src, 8, DefaultKMeansCriteria, newRand(seed))
		if err != nil {
			return nil, err
		}
		smooth := bilateral(quantized, 15, 40, 40)
		return maskAnd(smooth, edges), nil
	}
}

func sketch(src *image.RGBA) (*image.RGBA, error) {
	gray := grayscale(src)
	blurred := gaussianBlurGray(invertGray(gray), gaussianKernel(sketchKernel, 0))
	return grayToRGBA(divideScaled(gray, invertGray(blurred), sketchScale)), nil
}

func oilPainting(src *image.RGBA) (*image.RGBA, error) {
	out, err := oilPaint(src, oilRadius, oilDynRatio)
	if err != nil {
		return ghibli(src)
	}
	return out, nil
}

func watercolor(src *image.RGBA) (*image.RGBA, error) {
	out := src
	for i := 0; i < 3; i++ {
		out = bilateral(out, 9, 200, 200)
	}
	out = quantizeMedianCut(out, paletteColors)
	return gaussianBlurRGBA(out, kernelForSigma(1)), nil
}

func anime(seed uint64) Pipeline {
	return func(src *image.RGBA) (*image.RGBA, error) {
		smooth := bilateral(src, 15, 80, 80)
		edges := adaptiveThreshold(grayscale(src), thresholdBlock, thresholdC)
		quantized, err := quantizeKMeans(smooth, 6, DefaultKMeansCriteria, newRand(seed))
		if err != nil {
			return nil, err
		}
		return maskAnd(quantized, edges), nil
	}
}
