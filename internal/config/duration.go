// Package config holds value types shared by the yaml configuration of every
// pipeline stage.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads and writes as a Go duration string
// ("550ms", "40s") in yaml and json.
type Duration time.Duration

func NewDuration(d time.Duration) Duration {
	return Duration(d)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("config.Duration: failed to parse: %w", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalJSON(bytes []byte) error {
	var v string
	if err := json.Unmarshal(bytes, &v); err != nil {
		return err
	}

	duration, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config.Duration: failed to parse: %w", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Milliseconds returns the duration as an integer millisecond count
func (d Duration) Milliseconds() int64 {
	return time.Duration(d).Milliseconds()
}

// Positive returns an error unless the duration is greater than zero
func (d Duration) Positive() error {
	if d <= 0 {
		return fmt.Errorf("config.Duration: must be positive: %s", d)
	}
	return nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}
