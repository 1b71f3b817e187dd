package models

import (
	"encoding/json"
	"strings"
)

// RawInput carries the four sensor values as received, before parsing.
// A nil entry means the field was absent.
type RawInput struct {
	Temp  *string
	Hum   *string
	Gas   *string
	Flame *string
}

// PredictPayload is the JSON body of a predict request and of MQTT reading
// messages. Values may be JSON numbers or numeric strings.
type PredictPayload struct {
	Temp   json.RawMessage `json:"temp"`
	Hum    json.RawMessage `json:"hum"`
	Gas    json.RawMessage `json:"gas"`
	Flame  json.RawMessage `json:"flame"`
	Status *string         `json:"status,omitempty"`
}

// Raw converts the payload into RawInput
func (p PredictPayload) Raw() RawInput {
	return RawInput{
		Temp:  rawValue(p.Temp),
		Hum:   rawValue(p.Hum),
		Gas:   rawValue(p.Gas),
		Flame: rawValue(p.Flame),
	}
}

func rawValue(m json.RawMessage) *string {
	switch string(m) {
	case "", "null":
		return nil
	case "true":
		return StrPtr("1")
	case "false":
		return StrPtr("0")
	}
	var s string
	if err := json.Unmarshal(m, &s); err == nil {
		return &s
	}
	v := strings.TrimSpace(string(m))
	return &v
}

// StrPtr returns a pointer to s
func StrPtr(s string) *string {
	return &s
}
