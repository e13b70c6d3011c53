package kafka

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// Header keys yang dipasang producer di tiap pesan.
const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

// MustMarshal untuk nilai yang kita bentuk sendiri: gagal marshal berarti
// bug tipe, bukan kondisi runtime.
func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func UnmarshalEnvelope(b []byte, out any) error {
	return errors.Wrap(json.Unmarshal(b, out), "decode envelope")
}

// UnwrapPayload men-decode payload envelope ke tipe event konkret.
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, errors.Wrapf(err, "decode %T payload", t)
	}
	return t, nil
}

// HeaderValue membaca satu header pesan, "" kalau tidak ada. Consumer bisa
// menyaring by event type dari header tanpa decode JSON penuh.
func HeaderValue(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
