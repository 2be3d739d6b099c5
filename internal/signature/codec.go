package signature

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
	"strings"

	"github.com/pkg/errors"
)

const dataURLPrefix = "data:image/png;base64,"

var ErrNotPNG = errors.New("signature must be a base64 PNG data URL")

// Uploads larger than this are refused before decoding.
const (
	MaxImageWidth  = 4 * DefaultWidth
	MaxImageHeight = 4 * DefaultHeight
)

// Encode renders img as a PNG data URL.
func Encode(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", errors.Wrap(err, "encode signature png")
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode parses a PNG data URL. A bare base64 payload without the data: prefix
// is accepted as well.
func Decode(dataURL string) (image.Image, error) {
	raw, err := Bytes(dataURL)
	if err != nil {
		return nil, err
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(ErrNotPNG, err.Error())
	}
	if cfg.Width > MaxImageWidth || cfg.Height > MaxImageHeight {
		return nil, errors.Wrapf(ErrNotPNG, "image is %dx%d, at most %dx%d allowed",
			cfg.Width, cfg.Height, MaxImageWidth, MaxImageHeight)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(ErrNotPNG, err.Error())
	}
	return img, nil
}

// Bytes returns the raw PNG bytes of a data URL without decoding the image.
func Bytes(dataURL string) ([]byte, error) {
	s := strings.TrimSpace(dataURL)
	if s == "" {
		return nil, ErrNotPNG
	}
	if strings.HasPrefix(s, "data:") {
		if !strings.HasPrefix(s, dataURLPrefix) {
			return nil, ErrNotPNG
		}
		s = s[len(dataURLPrefix):]
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(ErrNotPNG, err.Error())
	}
	if len(raw) == 0 {
		return nil, ErrNotPNG
	}
	return raw, nil
}
