package metadata

// Keys carried on every bridged channel event.
const (
	KeyEvent         = "puppets_event"
	KeyChannel       = "puppets_channel"
	KeyOrigin        = "puppets_origin"
	KeyCodec         = "puppets_codec"
	KeyCorrelationID = "correlation_id"
)

// Metadata represents the headers carried alongside a bridged event.
type Metadata map[string]string

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	cloned := make(Metadata, len(m))
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// With returns a cloned metadata map containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.Clone()
	cloned[key] = value
	return cloned
}

func (m Metadata) Event() string         { return m[KeyEvent] }
func (m Metadata) Channel() string       { return m[KeyChannel] }
func (m Metadata) Origin() string        { return m[KeyOrigin] }
func (m Metadata) Codec() string         { return m[KeyCodec] }
func (m Metadata) CorrelationID() string { return m[KeyCorrelationID] }

// ForEvent builds the headers describing one channel event.
func ForEvent(channel, event, origin, codec, correlationID string) Metadata {
	md := Metadata{
		KeyChannel: channel,
		KeyEvent:   event,
		KeyOrigin:  origin,
		KeyCodec:   codec,
	}
	if correlationID != "" {
		md[KeyCorrelationID] = correlationID
	}
	return md
}
