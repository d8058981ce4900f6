// Package transport speaks the game server's websocket protocol.
//
// Frames are JSON objects tagged by "type". Inbound frames are validated
// against an embedded JSON schema before they are decoded.
package transport

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidFrame is returned for inbound frames that are not JSON or do not
// match the frame schema.
var ErrInvalidFrame = errors.New("invalid frame")

// FrameType tags every frame.
type FrameType string

const (
	FrameStatus      FrameType = "status"
	FrameObservation FrameType = "observation"
	FrameHit         FrameType = "hit"
	FrameShot        FrameType = "shot"
	FrameReset       FrameType = "reset"
	FrameTick        FrameType = "tick"

	// Outbound only.
	FrameHello   FrameType = "hello"
	FrameCommand FrameType = "command"
)

// Frame is one server message. Only the fields of its Type are meaningful.
type Frame struct {
	Type FrameType `json:"type"`

	// status
	X      int    `json:"x,omitempty"`
	Y      int    `json:"y,omitempty"`
	Facing string `json:"facing,omitempty"`
	State  string `json:"state,omitempty"`
	Score  int    `json:"score,omitempty"`
	Energy int    `json:"energy,omitempty"`

	// observation
	Percepts []string `json:"percepts,omitempty"`

	// hit, shot
	Agent string `json:"agent,omitempty"`
}

type helloFrame struct {
	Type FrameType `json:"type"`
	Name string    `json:"name"`
}

type commandFrame struct {
	Type    FrameType `json:"type"`
	Command string    `json:"command"`
}

//go:embed frame.schema.json
var frameSchemaJSON string

var (
	frameSchemaOnce sync.Once
	frameSchema     *jsonschema.Schema
	frameSchemaErr  error
)

func schema() (*jsonschema.Schema, error) {
	frameSchemaOnce.Do(func() {
		frameSchema, frameSchemaErr = jsonschema.CompileString("frame.schema.json", frameSchemaJSON)
	})
	return frameSchema, frameSchemaErr
}

// DecodeFrame validates and decodes one inbound message.
func DecodeFrame(data []byte) (Frame, error) {
	s, err := schema()
	if err != nil {
		return Frame{}, fmt.Errorf("compile frame schema: %w", err)
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if err := s.Validate(doc); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}

	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return f, nil
}
