package registry

import (
	"sort"
	"sync"
)

// Registration is the state of one announced stream: its SDP and the
// forwarders created by push SETUPs, keyed by session id. A push RECORD and
// concurrent pull SETUPs race on the same instance, hence the lock.
type Registration struct {
	path string
	sdp  []byte

	mutex      sync.Mutex
	forwarders map[string][]Forwarder
}

// Path returns the primary path.
func (sr *Registration) Path() string {
	return sr.path
}

// SDP returns the SDP stored at announce time.
func (sr *Registration) SDP() []byte {
	return sr.sdp
}

// AddForwarder binds a forwarder to a session id. A session accumulates one
// forwarder per accepted transport offer.
func (sr *Registration) AddForwarder(sessionID string, fw Forwarder) {
	sr.mutex.Lock()
	defer sr.mutex.Unlock()
	sr.forwarders[sessionID] = append(sr.forwarders[sessionID], fw)
}

// StartSession starts the forwarders bound to a session id. Unknown session
// ids are a no-op.
func (sr *Registration) StartSession(sessionID string) {
	sr.mutex.Lock()
	defer sr.mutex.Unlock()
	for _, fw := range sr.forwarders[sessionID] {
		fw.Start()
	}
}

// StopSession stops the forwarders bound to a session id, keeping both the
// Registration and the forwarder entries so that the publisher can resume.
// Unknown session ids are a no-op.
func (sr *Registration) StopSession(sessionID string) {
	sr.mutex.Lock()
	defer sr.mutex.Unlock()
	for _, fw := range sr.forwarders[sessionID] {
		fw.Stop()
	}
}

// SessionForwarder returns the forwarder a pull client attaches to. When
// several exist, the choice is deterministic: the first forwarder of the
// lowest session id in byte order.
func (sr *Registration) SessionForwarder() (Forwarder, bool) {
	sr.mutex.Lock()
	defer sr.mutex.Unlock()

	ids := make([]string, 0, len(sr.forwarders))
	for id, fws := range sr.forwarders {
		if len(fws) > 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, false
	}

	sort.Strings(ids)
	return sr.forwarders[ids[0]][0], true
}
