package attachments

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strconv"
	"strings"

	"golang.org/x/image/draw"

	// decoders registered for image.Decode
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Resolution is a thumbnail bounding box.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string { return fmt.Sprintf("%dx%d", r.Width, r.Height) }

// ParseResolutions parses "32x32,64x64" into resolutions, skipping malformed items.
func ParseResolutions(s string) []Resolution {
	var out []Resolution
	for _, part := range strings.Split(s, ",") {
		w, h, ok := strings.Cut(strings.TrimSpace(strings.ToLower(part)), "x")
		if !ok {
			continue
		}
		wi, err1 := strconv.Atoi(w)
		hi, err2 := strconv.Atoi(h)
		if err1 != nil || err2 != nil || wi <= 0 || hi <= 0 {
			continue
		}
		out = append(out, Resolution{Width: wi, Height: hi})
	}
	return out
}

// fit scales src dimensions to fit inside r, preserving aspect ratio.
func fit(src image.Rectangle, r Resolution) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	if sw <= 0 || sh <= 0 {
		return image.Rect(0, 0, r.Width, r.Height)
	}
	w, h := r.Width, sh*r.Width/sw
	if h > r.Height {
		h = r.Height
		w = sw * r.Height / sh
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return image.Rect(0, 0, w, h)
}

// thumbnail renders img into r and encodes it. format is the decoded source
// format; formats without an encoder fall back to png.
func thumbnail(img image.Image, format string, r Resolution) ([]byte, string, error) {
	dst := image.NewRGBA(fit(img.Bounds(), r))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	var err error
	ext := "." + format
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85})
		ext = ".jpg"
	case "gif":
		err = gif.Encode(&buf, dst, nil)
	default:
		err = png.Encode(&buf, dst)
		ext = ".png"
	}
	if err != nil {
		return nil, "", err
	}
	return buf.Bytes(), ext, nil
}

func decodeImage(b []byte) (image.Image, string, error) {
	return image.Decode(bytes.NewReader(b))
}
