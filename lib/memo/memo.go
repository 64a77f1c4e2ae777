package memo

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Width is the byte width of the memo field on a shielded transaction. The
// daemon NUL-pads shorter memos to this width, so encoded payloads must fit.
const Width = 512

// Payload types carried in the memo field.
const (
	TypeRequest  = "request"
	TypeIdentity = "identity"
	TypeMessage  = "message"
	TypeMerge    = "merge"
)

// Payload is the structured record carried in a transaction memo. The Type
// field discriminates which of the remaining fields are meaningful.
type Payload struct {
	Type      string `json:"type"`
	Category  string `json:"category,omitempty"`
	ID        string `json:"id,omitempty"`
	Username  string `json:"username,omitempty"`
	Address   string `json:"address,omitempty"`
	Text      string `json:"text,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// DecodeError reports a memo that could not be interpreted as a payload.
// Callers treat it as a plain-value receipt, not a failure: the transaction
// is still marked processed and the poll loop continues.
type DecodeError struct {
	Stage string // "hex", "utf8", "json" or "shape"
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("memo decode failed at %s stage: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("memo decode failed at %s stage", e.Stage)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrPayloadTooLarge is returned by Encode when the serialized payload would
// not fit in the memo field.
var ErrPayloadTooLarge = fmt.Errorf("encoded payload exceeds memo width of %d bytes", Width)

// Encode serializes a payload to the hex-of-JSON wire form expected by the
// daemon's send call.
func Encode(p *Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshaling memo payload: %w", err)
	}
	if len(data) > Width {
		return "", ErrPayloadTooLarge
	}
	return hex.EncodeToString(data), nil
}

// Decode parses a raw memo hex string back into a payload. The daemon pads
// memos with trailing NUL bytes, which are stripped before JSON parsing.
// Foreign transactions landing on the messaging address routinely fail here;
// every failure mode is reported as a *DecodeError.
func Decode(memoHex string) (*Payload, error) {
	raw, err := hex.DecodeString(memoHex)
	if err != nil {
		return nil, &DecodeError{Stage: "hex", Err: err}
	}

	raw = bytes.TrimRight(raw, "\x00")
	if !utf8.Valid(raw) {
		return nil, &DecodeError{Stage: "utf8"}
	}

	// Parse into a map first so that valid JSON that is not an object
	// (arrays, numbers, null) is rejected as unrecognized.
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, &DecodeError{Stage: "json", Err: err}
	}
	if shape == nil {
		return nil, &DecodeError{Stage: "shape"}
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &DecodeError{Stage: "shape", Err: err}
	}

	return &p, nil
}
