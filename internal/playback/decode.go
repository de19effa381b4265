package playback

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"mime"
	"strconv"
	"strings"

	"leo/internal/domain"
)

// DefaultFormat is what Gemini speech synthesis returns when the MIME type
// carries no rate: 24 kHz mono signed 16-bit PCM.
var DefaultFormat = domain.AudioFormat{SampleRate: 24000, Channels: 1}

// Decode turns an encoded payload into PCM16LE samples and their format.
func Decode(payload domain.AudioPayload) ([]byte, domain.AudioFormat, error) {
	if len(payload.Data) == 0 {
		return nil, domain.AudioFormat{}, errors.New("audio payload is empty")
	}

	mediaType, params, err := parseMIME(payload.MIMEType)
	if err != nil {
		return nil, domain.AudioFormat{}, err
	}

	switch mediaType {
	case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return decodeWAV(payload.Data)
	case "audio/l16", "audio/pcm", "audio/raw", "":
		if looksLikeWAV(payload.Data) {
			return decodeWAV(payload.Data)
		}
		format := DefaultFormat
		if rate, ok := positiveParam(params, "rate"); ok {
			format.SampleRate = rate
		}
		if channels, ok := positiveParam(params, "channels"); ok {
			format.Channels = channels
		}
		return checkPCM(payload.Data, format)
	default:
		return nil, domain.AudioFormat{}, fmt.Errorf("unsupported audio type %q", payload.MIMEType)
	}
}

func parseMIME(raw string) (string, map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil, nil
	}
	mediaType, params, err := mime.ParseMediaType(raw)
	if err != nil {
		return "", nil, fmt.Errorf("invalid audio type %q: %w", raw, err)
	}
	return strings.ToLower(mediaType), params, nil
}

func positiveParam(params map[string]string, key string) (int, bool) {
	value, ok := params[key]
	if !ok {
		return 0, false
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return 0, false
	}
	return parsed, true
}

func checkPCM(data []byte, format domain.AudioFormat) ([]byte, domain.AudioFormat, error) {
	frame := 2 * format.Channels
	if len(data)%frame != 0 {
		return nil, domain.AudioFormat{}, fmt.Errorf("pcm length %d is not a multiple of the %d byte frame", len(data), frame)
	}
	return data, format, nil
}

func looksLikeWAV(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
}

func decodeWAV(data []byte) ([]byte, domain.AudioFormat, error) {
	if !looksLikeWAV(data) {
		return nil, domain.AudioFormat{}, errors.New("missing RIFF/WAVE header")
	}

	var (
		format  domain.AudioFormat
		haveFmt bool
		pcm     []byte
		offset  = 12
	)
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if size < 0 || body+size > len(data) {
			return nil, domain.AudioFormat{}, fmt.Errorf("wav chunk %q overruns payload", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, domain.AudioFormat{}, errors.New("wav fmt chunk too short")
			}
			audioFormat := binary.LittleEndian.Uint16(data[body : body+2])
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if audioFormat != 1 || bits != 16 {
				return nil, domain.AudioFormat{}, fmt.Errorf("unsupported wav encoding (format %d, %d bits)", audioFormat, bits)
			}
			format.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			haveFmt = true
		case "data":
			pcm = data[body : body+size]
		}

		offset = body + size + size%2
	}

	if !haveFmt || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, domain.AudioFormat{}, errors.New("wav fmt chunk missing")
	}
	if len(pcm) == 0 {
		return nil, domain.AudioFormat{}, errors.New("wav data chunk missing")
	}
	return checkPCM(pcm, format)
}
