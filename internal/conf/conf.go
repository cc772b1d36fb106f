// Package conf contains the struct that holds the configuration of the software.
package conf

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/mediarelay/rtsp-rendezvous/internal/logger"
)

// Conf is the configuration of the server.
type Conf struct {
	// general
	LogLevel        LogLevel        `yaml:"logLevel"`
	LogDestinations LogDestinations `yaml:"logDestinations"`
	LogFile         string          `yaml:"logFile"`

	// RTSP
	RTSPAddress  string   `yaml:"rtspAddress"`
	ReadTimeout  Duration `yaml:"readTimeout"`
	WriteTimeout Duration `yaml:"writeTimeout"`

	// relay
	MulticastIPRange  string `yaml:"multicastIPRange"`
	MulticastRTPPort  int    `yaml:"multicastRTPPort"`
	MulticastRTCPPort int    `yaml:"multicastRTCPPort"`
}

func (conf *Conf) setDefaults() {
	conf.LogLevel = LogLevel(logger.Info)
	conf.LogDestinations = LogDestinations{logger.DestinationStdout: {}}
	conf.LogFile = "rtsp-rendezvous.log"
	conf.RTSPAddress = ":8554"
	conf.ReadTimeout = Duration(10 * time.Second)
	conf.WriteTimeout = Duration(10 * time.Second)
	conf.MulticastIPRange = "224.1.0.0/16"
	conf.MulticastRTPPort = 8002
	conf.MulticastRTCPPort = 8003
}

// Load loads a Conf.
func Load(fpath string) (*Conf, bool, error) {
	conf := &Conf{}
	conf.setDefaults()

	// rtsp-rendezvous.yml is optional
	found := true
	byts, err := os.ReadFile(fpath)
	if err != nil {
		if !os.IsNotExist(err) || fpath != "rtsp-rendezvous.yml" {
			return nil, false, err
		}
		found = false
	}

	if found {
		err = yaml.UnmarshalStrict(byts, conf)
		if err != nil {
			return nil, false, err
		}
	}

	err = conf.Validate()
	if err != nil {
		return nil, false, err
	}

	return conf, found, nil
}

// Validate checks the configuration for errors.
func (conf *Conf) Validate() error {
	if conf.RTSPAddress == "" {
		return fmt.Errorf("rtspAddress not provided")
	}

	_, _, err := net.ParseCIDR(conf.MulticastIPRange)
	if err != nil {
		return fmt.Errorf("invalid multicastIPRange '%s': %s", conf.MulticastIPRange, err)
	}

	if conf.MulticastRTPPort <= 0 || conf.MulticastRTPPort > 65535 {
		return fmt.Errorf("invalid multicastRTPPort (%d)", conf.MulticastRTPPort)
	}

	if conf.MulticastRTCPPort <= 0 || conf.MulticastRTCPPort > 65535 {
		return fmt.Errorf("invalid multicastRTCPPort (%d)", conf.MulticastRTCPPort)
	}

	if conf.MulticastRTCPPort == conf.MulticastRTPPort {
		return fmt.Errorf("multicastRTPPort and multicastRTCPPort must differ")
	}

	return nil
}
