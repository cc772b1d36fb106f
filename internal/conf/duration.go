package conf

import (
	"time"
)

// Duration is a duration that is unmarshaled from a string.
// Durations are normally unmarshaled from numbers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var in string
	if err := unmarshal(&in); err != nil {
		return err
	}

	du, err := time.ParseDuration(in)
	if err != nil {
		return err
	}
	*d = Duration(du)

	return nil
}
