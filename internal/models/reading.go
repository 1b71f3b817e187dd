package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the wire and log format of a reading's ingestion time
const TimestampLayout = "2006-01-02 15:04:05"

// Timestamp is a UTC instant with second precision
type Timestamp struct {
	time.Time
}

// NewTimestamp normalizes t to UTC and truncates it to the second
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Second)}
}

// ParseTimestamp parses a value written in TimestampLayout
func ParseTimestamp(s string) (Timestamp, error) {
	t, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return Timestamp{}, err
	}
	return Timestamp{Time: t}, nil
}

func (t Timestamp) String() string {
	return t.Time.Format(TimestampLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Reading is one ingested sensor sample with its hazard status.
// It is passed by value so every consumer sees the same record.
type Reading struct {
	Timestamp Timestamp `json:"timestamp"`
	Temp      float64   `json:"temp"`  // Celsius
	Hum       float64   `json:"hum"`   // Relative humidity %
	Gas       float64   `json:"gas"`   // Raw gas sensor value
	Flame     float64   `json:"flame"` // Flame sensor indicator
	Status    string    `json:"status"`
}

// Features returns the classifier input vector (temp, hum, gas, flame)
func (r Reading) Features() [4]float64 {
	return [4]float64{r.Temp, r.Hum, r.Gas, r.Flame}
}

// Record returns the reading as a flat row in log column order
func (r Reading) Record() []string {
	return []string{
		r.Timestamp.String(),
		FormatFloat(r.Temp),
		FormatFloat(r.Hum),
		FormatFloat(r.Gas),
		FormatFloat(r.Flame),
		r.Status,
	}
}

// LogHeader is the header row of the durable reading log
var LogHeader = []string{"timestamp", "temp", "hum", "gas", "flame", "status"}

// FormatFloat renders f in the shortest form that parses back to f
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// NormalizeStatus trims and uppercases a hazard label
func NormalizeStatus(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
