// Package core contains the main struct of the software.
package core

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"time"

	"github.com/alecthomas/kong"

	"github.com/mediarelay/rtsp-rendezvous/internal/conf"
	"github.com/mediarelay/rtsp-rendezvous/internal/confwatcher"
	"github.com/mediarelay/rtsp-rendezvous/internal/logger"
	"github.com/mediarelay/rtsp-rendezvous/internal/registry"
)

var version = "v0.0.0"

var cli struct {
	Version  bool   `help:"print version"`
	Confpath string `arg:"" default:"rtsp-rendezvous.yml"`
}

// Core is an instance of the server.
type Core struct {
	ctx         context.Context
	ctxCancel   func()
	confPath    string
	conf        *conf.Conf
	confFound   bool
	logger      *logger.Logger
	registry    *registry.Registry
	rtspServer  *rtspServer
	confWatcher *confwatcher.ConfWatcher

	// out
	done chan struct{}
}

// New allocates a Core.
func New(args []string) (*Core, bool) {
	parser, err := kong.New(&cli,
		kong.Description("rtsp-rendezvous "+version),
		kong.UsageOnError(),
		kong.ValueFormatter(func(value *kong.Value) string {
			switch value.Name {
			case "confpath":
				return "path to a config file. The default is rtsp-rendezvous.yml."

			default:
				return kong.DefaultHelpValueFormatter(value)
			}
		}))
	if err != nil {
		panic(err)
	}

	_, err = parser.Parse(args)
	parser.FatalIfErrorf(err)

	if cli.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	p := &Core{
		ctx:       ctx,
		ctxCancel: ctxCancel,
		confPath:  cli.Confpath,
		done:      make(chan struct{}),
	}

	p.conf, p.confFound, err = conf.Load(p.confPath)
	if err != nil {
		fmt.Printf("ERR: %s\n", err)
		return nil, false
	}

	err = p.createResources(true)
	if err != nil {
		if p.logger != nil {
			p.Log(logger.Error, "%s", err)
		} else {
			fmt.Printf("ERR: %s\n", err)
		}
		p.closeResources()
		return nil, false
	}

	go p.run()

	return p, true
}

// Close closes Core and waits for all goroutines to return.
func (p *Core) Close() {
	p.ctxCancel()
	<-p.done
}

// Wait waits for the Core to exit.
func (p *Core) Wait() {
	<-p.done
}

// Log is the main logging function.
func (p *Core) Log(level logger.Level, format string, args ...interface{}) {
	p.logger.Log(level, format, args...)
}

func (p *Core) run() {
	defer close(p.done)

	confChanged := func() chan struct{} {
		if p.confWatcher != nil {
			return p.confWatcher.Watch()
		}
		return make(chan struct{})
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

outer:
	for {
		select {
		case <-confChanged:
			p.Log(logger.Info, "reloading configuration (file changed)")

			newConf, _, err := conf.Load(p.confPath)
			if err != nil {
				p.Log(logger.Error, "%s", err)
				break outer
			}

			err = p.reloadConf(newConf)
			if err != nil {
				p.Log(logger.Error, "%s", err)
				break outer
			}

		case <-interrupt:
			p.Log(logger.Info, "shutting down gracefully")
			break outer

		case <-p.ctx.Done():
			break outer
		}
	}

	p.ctxCancel()
	p.closeResources()
}

func (p *Core) createResources(initial bool) error {
	var err error

	if p.logger == nil {
		p.logger, err = logger.New(
			logger.Level(p.conf.LogLevel),
			p.conf.LogDestinations,
			p.conf.LogFile)
		if err != nil {
			return err
		}
	}

	if initial {
		p.Log(logger.Info, "rtsp-rendezvous %s", version)

		if !p.confFound {
			p.Log(logger.Warn, "configuration file not found, using defaults")
		}
	}

	// the registry survives configuration reloads: announced streams stay
	// resolvable as long as the process lives
	if p.registry == nil {
		p.registry = registry.New()
	}

	if p.rtspServer == nil {
		p.rtspServer, err = newRTSPServer(
			p.conf.RTSPAddress,
			time.Duration(p.conf.ReadTimeout),
			time.Duration(p.conf.WriteTimeout),
			p.conf.MulticastIPRange,
			p.conf.MulticastRTPPort,
			p.conf.MulticastRTCPPort,
			p.registry,
			p)
		if err != nil {
			return err
		}
	}

	if p.confWatcher == nil && p.confFound {
		p.confWatcher, err = confwatcher.New(p.confPath)
		if err != nil {
			return err
		}
	}

	return nil
}

func (p *Core) reloadConf(newConf *conf.Conf) error {
	closeLogger := newConf.LogLevel != p.conf.LogLevel ||
		!reflect.DeepEqual(newConf.LogDestinations, p.conf.LogDestinations) ||
		newConf.LogFile != p.conf.LogFile

	closeServer := newConf.RTSPAddress != p.conf.RTSPAddress ||
		newConf.ReadTimeout != p.conf.ReadTimeout ||
		newConf.WriteTimeout != p.conf.WriteTimeout ||
		newConf.MulticastIPRange != p.conf.MulticastIPRange ||
		newConf.MulticastRTPPort != p.conf.MulticastRTPPort ||
		newConf.MulticastRTCPPort != p.conf.MulticastRTCPPort

	if closeServer && p.rtspServer != nil {
		p.rtspServer.close()
		p.rtspServer = nil
	}

	if closeLogger && p.logger != nil {
		p.logger.Close()
		p.logger = nil
	}

	p.conf = newConf
	return p.createResources(false)
}

func (p *Core) closeResources() {
	if p.confWatcher != nil {
		p.confWatcher.Close()
		p.confWatcher = nil
	}

	if p.rtspServer != nil {
		p.rtspServer.close()
		p.rtspServer = nil
	}

	if p.logger != nil {
		p.logger.Close()
		p.logger = nil
	}
}
