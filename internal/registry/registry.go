// Package registry contains the stream registry shared by push and pull
// sessions.
package registry

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
)

// Modeled errors.
var (
	// ErrPathExists is returned by AnnouncePush when the path is taken.
	ErrPathExists = errors.New("path is already registered")

	// ErrPathNotFound is returned when a path or alias is not registered.
	ErrPathNotFound = errors.New("path is not registered")
)

// Forwarder is the control surface of a relay path. It is implemented by
// forwarder.Forwarder.
type Forwarder interface {
	Start()
	Stop()
	Attach() *net.UDPAddr
}

// Registry maps canonical absolute paths and SDP control aliases to
// registrations. It is created once at startup and shared by every
// connection.
type Registry struct {
	mutex         sync.RWMutex
	registrations map[string]*Registration
}

// New allocates a Registry.
func New() *Registry {
	return &Registry{
		registrations: make(map[string]*Registration),
	}
}

// AnnouncePush registers a stream under its primary path and under every
// control alias declared in its SDP. All keys share the same Registration.
func (r *Registry) AnnouncePush(path string, sdp []byte) (*Registration, error) {
	// parse aliases before touching the map, so that a malformed SDP
	// registers nothing
	aliases, err := controlAliases(path, sdp)
	if err != nil {
		return nil, err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.registrations[path]; ok {
		return nil, ErrPathExists
	}

	sr := &Registration{
		path:       path,
		sdp:        sdp,
		forwarders: make(map[string][]Forwarder),
	}

	r.registrations[path] = sr
	for _, alias := range aliases {
		r.registrations[alias] = sr
	}

	return sr, nil
}

// Resolve returns the Registration of a path or control alias.
func (r *Registry) Resolve(path string) (*Registration, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	sr, ok := r.registrations[path]
	if !ok {
		return nil, ErrPathNotFound
	}
	return sr, nil
}

// ResolvePullAlias resolves a pull path to the Registration of the
// corresponding push path.
func (r *Registry) ResolvePullAlias(path string) (*Registration, error) {
	target, ok := PullAlias(path)
	if !ok {
		return nil, ErrPathNotFound
	}
	return r.Resolve(target)
}

// PullAlias maps a pull path to its push counterpart by replacing the first
// PULL path segment with PUSH. The match is segment-exact: a segment like
// PULLER is left alone.
func PullAlias(path string) (string, bool) {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == "PULL" {
			segments[i] = "PUSH"
			return strings.Join(segments, "/"), true
		}
	}
	return "", false
}

// controlAliases extracts the per-track control attributes declared in a
// SDP and resolves them against the stream path. Both CRLF and bare LF line
// terminators are accepted. Relative values are combined with the path;
// absolute values are honored verbatim.
func controlAliases(path string, sdp []byte) ([]string, error) {
	base, err := url.Parse(path + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid path '%s': %s", path, err)
	}

	var aliases []string

	for _, line := range strings.Split(string(sdp), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, "a=control:") {
			continue
		}

		value := strings.TrimSpace(line[len("a=control:"):])

		ref, err := url.Parse(value)
		if err != nil {
			return nil, fmt.Errorf("invalid control attribute '%s': %s", value, err)
		}

		if ref.IsAbs() {
			aliases = append(aliases, value)
			continue
		}

		aliases = append(aliases, base.ResolveReference(ref).Path)
	}

	return aliases, nil
}
