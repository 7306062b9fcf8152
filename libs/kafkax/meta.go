package kafkax

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
	HeaderClinicID  = "clinic_id"
)

// EventMeta identifies a message independently of its payload.
type EventMeta struct {
	EventID   string
	EventType string
	ClinicID  string
}

// MetaOf reads the metadata headers, falling back to the key and topic.
func MetaOf(msg kafka.Message) EventMeta {
	m := EventMeta{
		EventID:   Header(msg.Headers, HeaderEventID),
		EventType: Header(msg.Headers, HeaderEventType),
		ClinicID:  Header(msg.Headers, HeaderClinicID),
	}
	if m.EventID == "" {
		m.EventID = string(msg.Key)
	}
	if m.EventType == "" {
		m.EventType = msg.Topic
	}
	return m
}

func (m EventMeta) Headers() []kafka.Header {
	h := []kafka.Header{
		{Key: HeaderEventID, Value: []byte(m.EventID)},
		{Key: HeaderEventType, Value: []byte(m.EventType)},
	}
	if m.ClinicID != "" {
		h = append(h, kafka.Header{Key: HeaderClinicID, Value: []byte(m.ClinicID)})
	}
	return h
}

func Header(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
