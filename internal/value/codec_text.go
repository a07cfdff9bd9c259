package value

import "encoding/json"

// ControlMessage is the generic envelope for the text control channel
// (§4.1, §6): {"method": "...", "params": {...}}. Concrete per-method
// params are decoded by the net package, which knows the method set.
type ControlMessage struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// EncodeText marshals a method name and params value into a single JSON
// control message.
func EncodeText(method string, params any) ([]byte, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ControlMessage{Method: method, Params: raw})
}

// DecodeText parses a JSON control message. A structurally invalid frame
// (bad JSON, missing "method") is reported as ErrMalformed; per §4.1 this
// SHOULD cause the caller to close the connection.
func DecodeText(b []byte) (ControlMessage, error) {
	var cm ControlMessage
	if err := json.Unmarshal(b, &cm); err != nil {
		return ControlMessage{}, ErrMalformed
	}
	if cm.Method == "" {
		return ControlMessage{}, ErrMalformed
	}
	return cm, nil
}
