package domain

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const defaultImageMIMEType = "image/jpeg"

// ImageFromDataURL decodes a browser data URL ("data:image/png;base64,...").
// A bare base64 string is accepted and assumed to be JPEG.
func ImageFromDataURL(raw string) (*Image, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	mimeType := defaultImageMIMEType
	payload := raw
	if strings.HasPrefix(raw, "data:") {
		header, data, ok := strings.Cut(raw, ",")
		if !ok {
			return nil, errors.New("malformed data url")
		}
		payload = data
		meta := strings.TrimPrefix(header, "data:")
		meta = strings.TrimSuffix(meta, ";base64")
		if meta != "" {
			mimeType = meta
		}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode image data: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("image data is empty")
	}
	return &Image{MIMEType: mimeType, Data: data}, nil
}
