package conf

import (
	"fmt"

	"github.com/mediarelay/rtsp-rendezvous/internal/logger"
)

// LogDestinations is the logDestinations parameter.
type LogDestinations map[logger.Destination]struct{}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *LogDestinations) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var in []string
	if err := unmarshal(&in); err != nil {
		return err
	}

	*d = make(LogDestinations)

	for _, proposed := range in {
		switch proposed {
		case "stdout":
			(*d)[logger.DestinationStdout] = struct{}{}

		case "file":
			(*d)[logger.DestinationFile] = struct{}{}

		default:
			return fmt.Errorf("invalid log destination: %s", proposed)
		}
	}

	return nil
}
