// Package datatypes defines shared types for events published about templates and responses.
package datatypes

// EventType represents an event type as an enum.
// Use String() to get the string representation for payloads and metrics.
type EventType uint16

// Event type constants; string form is given in eventTypeMap.
const (
	ResponseCreated EventType = iota
	ResponseUpdated
	ResponseSubmitted
	TemplateCreated
	TemplateUpdated
)

// eventTypeMap is the single source of truth for valid event type strings.
var eventTypeMap = map[string]EventType{
	"response.created":   ResponseCreated,
	"response.updated":   ResponseUpdated,
	"response.submitted": ResponseSubmitted,
	"template.created":   TemplateCreated,
	"template.updated":   TemplateUpdated,
}

var reverseEventTypeMap map[EventType]string

func init() {
	reverseEventTypeMap = make(map[EventType]string, len(eventTypeMap))
	for str, eventType := range eventTypeMap {
		reverseEventTypeMap[eventType] = str
	}
}

// String returns the string representation of an EventType, or "" for invalid values.
func (et EventType) String() string {
	return reverseEventTypeMap[et]
}

// ParseEventType converts a string to an EventType enum.
func ParseEventType(s string) (EventType, bool) {
	et, ok := eventTypeMap[s]

	return et, ok
}

// IsValidEventType checks if an event type string is valid.
func IsValidEventType(eventType string) bool {
	_, ok := eventTypeMap[eventType]

	return ok
}
