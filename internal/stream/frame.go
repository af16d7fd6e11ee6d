package stream

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// frameKeys are the JSON object keys clients use for the image payload,
// checked in order.
var frameKeys = []string{"frame", "image", "data", "img"}

// DecodeFramePayload extracts the JPEG bytes from one websocket message.
// Accepted shapes:
//   - a bare base64 string;
//   - a JSON object with the image under one of frameKeys, or with a
//     single string value under any key;
//   - either of the above as a data URL ("data:image/jpeg;base64,...").
func DecodeFramePayload(msg []byte) ([]byte, error) {
	s := strings.TrimSpace(string(msg))
	if s == "" {
		return nil, fmt.Errorf("empty frame payload")
	}

	if strings.HasPrefix(s, "{") {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return nil, fmt.Errorf("invalid frame JSON: %w", err)
		}
		raw, ok := lookupFrameValue(obj)
		if !ok {
			return nil, fmt.Errorf("frame JSON has no image field")
		}
		s = raw
	}

	return decodeBase64Image(s)
}

// lookupFrameValue finds the image string in a frame object: one of the
// known keys, or the only string value in a single-key object when it
// plausibly carries image data. The latter guard keeps control messages
// like {"mode":"classify"} from being mistaken for a frame just because
// the value happens to be valid base64.
func lookupFrameValue(obj map[string]json.RawMessage) (string, bool) {
	for _, key := range frameKeys {
		if raw, ok := obj[key]; ok {
			var s string
			if err := json.Unmarshal(raw, &s); err == nil && s != "" {
				return s, true
			}
		}
	}
	if len(obj) == 1 {
		for _, raw := range obj {
			var s string
			if err := json.Unmarshal(raw, &s); err == nil && looksLikeImage(s) {
				return s, true
			}
		}
	}
	return "", false
}

// looksLikeImage reports whether s is plausibly an image payload: a data
// URL, or base64 whose leading bytes carry a JPEG or PNG signature.
func looksLikeImage(s string) bool {
	if strings.HasPrefix(s, "data:image/") {
		return true
	}
	// 8 base64 chars are a complete quantum decoding to 6 bytes, enough
	// for either signature.
	if len(s) < 8 {
		return false
	}
	head, err := base64.StdEncoding.DecodeString(s[:8])
	if err != nil {
		return false
	}
	return bytes.HasPrefix(head, []byte{0xff, 0xd8, 0xff}) ||
		bytes.HasPrefix(head, []byte("\x89PNG"))
}

func decodeBase64Image(s string) ([]byte, error) {
	// Data URL: strip through the comma.
	if strings.HasPrefix(s, "data:") {
		idx := strings.IndexByte(s, ',')
		if idx < 0 {
			return nil, fmt.Errorf("malformed data URL")
		}
		s = s[idx+1:]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty image data")
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// Some clients strip padding.
		if data, err2 := base64.RawStdEncoding.DecodeString(s); err2 == nil {
			return data, nil
		}
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	return data, nil
}
