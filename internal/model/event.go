package model

import "encoding/json"

// MarshalJSON flattens the payload fields alongside the event envelope.
// Envelope fields win on collision so a payload can never forge its
// event_id or session_id.
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Payload)+4)
	for k, v := range e.Payload {
		out[k] = v
	}
	out["event_id"] = e.EventID
	out["ts"] = e.TS
	out["type"] = e.Type
	out["session_id"] = e.SessionID
	return json.Marshal(out)
}

// UnmarshalJSON splits the envelope back out of a flattened event line.
func (e *Event) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.EventID, _ = raw["event_id"].(string)
	e.TS, _ = raw["ts"].(string)
	e.Type, _ = raw["type"].(string)
	e.SessionID, _ = raw["session_id"].(string)
	delete(raw, "event_id")
	delete(raw, "ts")
	delete(raw, "type")
	delete(raw, "session_id")
	e.Payload = raw
	return nil
}
