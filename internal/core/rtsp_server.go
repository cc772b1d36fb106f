package core

import (
	"net"
	"sync"
	"time"

	"github.com/mediarelay/rtsp-rendezvous/internal/forwarder"
	"github.com/mediarelay/rtsp-rendezvous/internal/logger"
	"github.com/mediarelay/rtsp-rendezvous/internal/registry"
)

type rtspServerParent interface {
	logger.Writer
}

// rtspServer accepts RTSP connections and hands each one to a rtspConn.
type rtspServer struct {
	readTimeout  time.Duration
	writeTimeout time.Duration
	rtpPort      int
	rtcpPort     int
	registry     *registry.Registry
	parent       rtspServerParent

	ln    net.Listener
	mcast *multicastAllocator

	mutex sync.Mutex
	conns map[*rtspConn]struct{}
	wg    sync.WaitGroup
}

func newRTSPServer(
	address string,
	readTimeout time.Duration,
	writeTimeout time.Duration,
	multicastIPRange string,
	rtpPort int,
	rtcpPort int,
	reg *registry.Registry,
	parent rtspServerParent) (*rtspServer, error) {

	mcast, err := newMulticastAllocator(multicastIPRange)
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}

	s := &rtspServer{
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		rtpPort:      rtpPort,
		rtcpPort:     rtcpPort,
		registry:     reg,
		parent:       parent,
		ln:           ln,
		mcast:        mcast,
		conns:        make(map[*rtspConn]struct{}),
	}

	s.log(logger.Info, "listener opened on %s", address)

	s.wg.Add(1)
	go s.run()

	return s, nil
}

func (s *rtspServer) log(level logger.Level, format string, args ...interface{}) {
	s.parent.Log(level, "[RTSP] "+format, args...)
}

func (s *rtspServer) close() {
	s.ln.Close()

	s.mutex.Lock()
	for c := range s.conns {
		c.close()
	}
	s.mutex.Unlock()

	s.wg.Wait()
}

func (s *rtspServer) run() {
	defer s.wg.Done()

	for {
		nconn, err := s.ln.Accept()
		if err != nil {
			break
		}

		c := newRTSPConn(s, nconn)

		s.mutex.Lock()
		s.conns[c] = struct{}{}
		s.mutex.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c.run()

			s.mutex.Lock()
			delete(s.conns, c)
			s.mutex.Unlock()
		}()
	}
}

// allocateForwarders creates count forwarders, releasing the ones already
// bound when a later bind fails.
func allocateForwarders(count int,
	create func() (*forwarder.Forwarder, error)) ([]*forwarder.Forwarder, error) {
	var fws []*forwarder.Forwarder

	for i := 0; i < count; i++ {
		fw, err := create()
		if err != nil {
			for _, prev := range fws {
				prev.Close()
			}
			return nil, err
		}
		fws = append(fws, fw)
	}

	return fws, nil
}

// newForwarder allocates a relay path toward a fresh multicast group.
func (s *rtspServer) newForwarder(parent forwarder.Parent) (*forwarder.Forwarder, error) {
	group := s.mcast.ip()
	return forwarder.New(
		s.writeTimeout,
		&net.UDPAddr{IP: group, Port: s.rtpPort},
		&net.UDPAddr{IP: group, Port: s.rtcpPort},
		parent)
}
