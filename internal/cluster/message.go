package cluster

import "encoding/json"

// Message is a JSON-RPC-shaped cluster frame. Replies carry Result/Error
// keyed to the request's ID; one-way calls (the common case for check
// results and config sync) omit ID entirely.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      string          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Ts      int64           `json:"ts,omitempty"` // unix nanos; 0 means "don't update replay position"
}

// EncodeParams marshals v into Params.
func (m *Message) EncodeParams(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.Params = data
	return nil
}

// DecodeParams unmarshals Params into v.
func (m *Message) DecodeParams(v any) error {
	if len(m.Params) == 0 {
		return nil
	}
	return json.Unmarshal(m.Params, v)
}

const heartbeatMethod = "event::Heartbeat"

func newHeartbeat() *Message {
	return &Message{JSONRPC: "2.0", Method: heartbeatMethod}
}
