package media

import "image"

// Frame is a decoded video frame tagged with its position in decode order.
type Frame struct {
	Index int
	Image *image.RGBA
}
