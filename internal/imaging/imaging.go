// Package imaging turns transport-encoded camera frames into pixel buffers.
// It is the image-decoding collaborator of the verification pipeline: the
// gates themselves never see base64 or compression formats.
package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	dErrors "presence/pkg/domain-errors"
)

// maxDimension caps decoded frames before they hit the texture gate and the
// face sidecar. Kiosk cameras ship 4K frames; nothing downstream needs more
// than this.
const maxDimension = 1280

// FromBase64 decodes a base64 frame as sent by clients. Data-URL prefixes
// ("data:image/jpeg;base64,...") are tolerated the same way browsers emit
// them.
func FromBase64(s string) ([]byte, error) {
	if idx := strings.IndexByte(s, ','); idx >= 0 && strings.HasPrefix(s, "data:") {
		s = s[idx+1:]
	}
	if s == "" {
		return nil, dErrors.New(dErrors.CodeInvalidImage, "empty image payload")
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// Some clients strip padding; try the raw alphabet before giving up.
		raw, err = base64.RawStdEncoding.DecodeString(s)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidImage, "invalid base64 image payload")
		}
	}
	return raw, nil
}

// Decode turns encoded image bytes into an image.Image. JPEG, PNG, GIF, BMP
// and WebP are supported. Oversized frames are scaled down to bound texture
// analysis and sidecar payloads.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidImage, "empty image data")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidImage, "undecodable image data")
	}
	return fitWithin(img, maxDimension), nil
}

// fitWithin scales img down so that neither dimension exceeds limit,
// preserving aspect ratio. Images already within the limit are returned
// unchanged.
func fitWithin(img image.Image, limit int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= limit && h <= limit {
		return img
	}

	scale := float64(limit) / float64(max(w, h))
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}
