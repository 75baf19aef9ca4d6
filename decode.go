package main

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
)

// decodeBase64Image turns a base64 payload, optionally carrying a data-URL
// header ("data:image/png;base64,...."), into a decoded image. Everything up
// to and including the first comma is treated as the header and discarded.
func decodeBase64Image(data string) (image.Image, error) {
	if idx := strings.Index(data, ","); idx >= 0 {
		data = data[idx+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unsupported image data: %w", err)
	}

	return img, nil
}
