package logger

import (
	"fmt"
	"log/slog"
	"strings"
)

// payloadKeys are attribute keys whose values are user data. They are
// logged as a short preview with the original length.
var payloadKeys = []string{
	"value",
	"message",
	"payload",
}

// PreviewLen is the number of leading bytes kept by Preview.
const PreviewLen = 16

func isPayloadKey(key string) bool {
	key = strings.ToLower(key)
	for _, k := range payloadKeys {
		if key == k {
			return true
		}
	}
	return false
}

// redactPayload shortens user data found under payload keys, recursing
// into groups.
func redactPayload(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactPayload(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}

	if !isPayloadKey(a.Key) {
		return a
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, Preview(a.Value.String()))
	case slog.KindAny:
		if b, ok := a.Value.Any().([]byte); ok {
			return slog.String(a.Key, Preview(string(b)))
		}
	}
	return a
}

// Preview returns s unchanged when it is short, otherwise its first
// PreviewLen bytes followed by the total length.
func Preview(s string) string {
	if len(s) <= PreviewLen {
		return s
	}
	return fmt.Sprintf("%s...(%d bytes)", s[:PreviewLen], len(s))
}
