package types

// Control is the closed set of client control messages. Anything outside the
// set parses to Unknown and is handed to application handlers untouched.
type Control interface {
	isControl()
}

// HeartbeatResponse answers a server heartbeat probe.
type HeartbeatResponse struct{}

// Subscribe adds event types to the connection's subscription set.
type Subscribe struct {
	EventTypes []string
}

// Unsubscribe removes event types from the connection's subscription set.
type Unsubscribe struct {
	EventTypes []string
}

// Authenticate carries a bearer token for post-connect authentication.
type Authenticate struct {
	Token string
}

// Unknown is any inbound message the hub has no built-in semantics for.
type Unknown struct {
	RawType string
	Payload map[string]any
}

func (HeartbeatResponse) isControl() {}
func (Subscribe) isControl()         {}
func (Unsubscribe) isControl()       {}
func (Authenticate) isControl()      {}
func (Unknown) isControl()           {}

// ParseControl maps an inbound message onto the control union.
func ParseControl(msg Message) Control {
	switch msg.Type {
	case TypeHeartbeatResponse:
		return HeartbeatResponse{}
	case TypeSubscribe:
		return Subscribe{EventTypes: stringSlice(msg.Data, "event_types")}
	case TypeUnsubscribe:
		return Unsubscribe{EventTypes: stringSlice(msg.Data, "event_types")}
	case TypeAuthenticate:
		token, _ := msg.Data["token"].(string)
		return Authenticate{Token: token}
	default:
		return Unknown{RawType: msg.Type, Payload: msg.Data}
	}
}

func stringSlice(data map[string]any, key string) []string {
	raw, ok := data[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
