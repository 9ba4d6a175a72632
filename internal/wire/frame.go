// Package wire frames a callable as "<typeTag>::<payload>" and resolves
// typeTag through a process-wide registry to reconstruct it on the consumer
// side. The payload is JSON, camelCased via struct tags, with default-value
// elision left to encoding/json's omitempty.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/oriys/callmq/internal/errs"
)

const delimiter = "::"

// Callable is the minimal shape the codec needs: every registered type must
// expose its own type tag so encode can frame it, and be a plain Go value
// the registry can construct and hydrate via JSON.
type Callable interface {
	TypeTag() string
}

// Frame is the decoded (typeTag, payload) pair before hydration.
type Frame struct {
	TypeTag string
	Payload []byte
}

// Split parses raw bytes into a Frame. It splits on the first occurrence of
// the delimiter (split limit = 2); anything other than exactly two parts is
// a MalformedFrame.
func Split(raw []byte) (Frame, error) {
	parts := bytes.SplitN(raw, []byte(delimiter), 2)
	if len(parts) != 2 {
		return Frame{}, errs.MalformedFrame(fmt.Sprintf("expected %q delimiter, got %d part(s)", delimiter, len(parts)), nil)
	}
	return Frame{TypeTag: string(parts[0]), Payload: parts[1]}, nil
}

// Join assembles a Frame back into wire bytes.
func Join(typeTag string, payload []byte) []byte {
	out := make([]byte, 0, len(typeTag)+len(delimiter)+len(payload))
	out = append(out, typeTag...)
	out = append(out, delimiter...)
	out = append(out, payload...)
	return out
}

// Encode serializes a registered callable to wire bytes. Fields tagged
// `json:"-"` (logger slots, dependency-bound slots) are elided by
// encoding/json itself; callers are expected to mark those fields that way
// in their callable structs.
func Encode(c Callable) ([]byte, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, errs.MalformedFrame("encode payload", err)
	}
	return Join(c.TypeTag(), payload), nil
}

// Decode splits raw bytes, resolves the type tag through reg, constructs a
// fresh instance, and hydrates it from the payload. Any structural mismatch
// surfaces as a MalformedFrame, never a partially-hydrated value.
func Decode(reg *Registry, raw []byte) (Callable, error) {
	frame, err := Split(raw)
	if err != nil {
		return nil, err
	}

	ctor, ok := reg.lookup(frame.TypeTag)
	if !ok {
		return nil, errs.MalformedFrame(fmt.Sprintf("unregistered type tag %q", frame.TypeTag), nil)
	}

	instance := ctor()
	if err := json.Unmarshal(frame.Payload, instance); err != nil {
		return nil, errs.MalformedFrame(fmt.Sprintf("hydrate %q", frame.TypeTag), err)
	}
	return instance, nil
}
