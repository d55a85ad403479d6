package render

import (
	"bufio"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

const jpegQuality = 95

// framePNG trades size for speed; frames only live until encoding.
var framePNG = &png.Encoder{CompressionLevel: png.BestSpeed}

// outputExtension returns the extension the styled file is written with:
// the input's own extension when it is an encodable image format, png
// otherwise.
func outputExtension(path string) string {
	ext := Extension(path)
	switch ext {
	case "png", "jpg", "jpeg", "gif", "bmp", "tiff", "tif":
		return ext
	}
	return "png"
}

// decodeFile reads and decodes the image at path.
func decodeFile(path string) (image.Image, string, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from the upload store
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = f.Close() }()

	img, format, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, "", err
	}
	if img.Bounds().Empty() {
		return nil, "", fmt.Errorf("image %s has no pixels", filepath.Base(path))
	}
	return img, format, nil
}

// encodeFile writes img to path in the format named by ext. The file is
// written under a temporary name and renamed into place.
func encodeFile(path string, img image.Image, ext string) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".encode_*")
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	tmpName := f.Name()

	w := bufio.NewWriter(f)
	if err := encode(w, img, ext); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("flush output file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close output file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("move output file: %w", err)
	}
	return nil
}

func encode(w io.Writer, img image.Image, ext string) error {
	switch ext {
	case "jpg", "jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	case "gif":
		return gif.Encode(w, img, &gif.Options{NumColors: 256})
	case "bmp":
		return bmp.Encode(w, img)
	case "tiff", "tif":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return png.Encode(w, img)
	}
}

// writeFrame stores a styled video frame as PNG.
func writeFrame(path string, img image.Image) error {
	f, err := os.Create(path) // #nosec G304 - path is inside a job workspace
	if err != nil {
		return fmt.Errorf("create frame file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := framePNG.Encode(w, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush frame: %w", err)
	}
	return f.Close()
}
