package http

// EventKind tags the variant carried by an Event.
type EventKind uint8

const (
	// EventRequest is a received request line plus header block.
	EventRequest EventKind = iota + 1
	// EventInformational is an outgoing 1xx interim response.
	EventInformational
	// EventResponse is an outgoing status line plus header block.
	EventResponse
	// EventData is a run of body bytes in either direction.
	EventData
	// EventEndOfMessage terminates the current message.
	EventEndOfMessage
	// EventConnectionClosed reports a clean end of the inbound stream
	// between messages.
	EventConnectionClosed
)

func (k EventKind) String() string {
	switch k {
	case EventRequest:
		return "Request"
	case EventInformational:
		return "InformationalResponse"
	case EventResponse:
		return "Response"
	case EventData:
		return "Data"
	case EventEndOfMessage:
		return "EndOfMessage"
	case EventConnectionClosed:
		return "ConnectionClosed"
	default:
		return "Unknown"
	}
}

// Event is one unit of an HTTP message as it crosses a Conn. Only the
// fields relevant to Kind are set.
type Event struct {
	Kind EventKind

	// EventRequest
	Method string
	Target string
	Proto  string

	// EventInformational, EventResponse
	StatusCode int

	// EventRequest, EventInformational, EventResponse
	Header Header

	// EventData
	Data []byte
}
