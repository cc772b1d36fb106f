// Package forwarder contains the UDP relay path of a push session.
package forwarder

import (
	"net"
	"sync"
	"time"

	"github.com/mediarelay/rtsp-rendezvous/internal/logger"
)

const (
	readBufferSize = 2048
)

// Parent is implemented by core.
type Parent interface {
	logger.Writer
}

// Forwarder is the control handle of one relay path. It owns the listen
// sockets that receive media from a publisher and copies incoming packets
// to a multicast destination while active.
type Forwarder struct {
	writeTimeout time.Duration
	rtpDest      *net.UDPAddr
	rtcpDest     *net.UDPAddr
	parent       Parent

	rtpPC  *net.UDPConn
	rtcpPC *net.UDPConn

	mutex    sync.RWMutex
	active   bool
	attached bool

	// out
	done chan struct{}
}

// New allocates a Forwarder. Listen ports are chosen by the operating
// system; binding failures are returned to the caller.
func New(
	writeTimeout time.Duration,
	rtpDest *net.UDPAddr,
	rtcpDest *net.UDPAddr,
	parent Parent) (*Forwarder, error) {

	rtpPC, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, err
	}

	rtcpPC, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		rtpPC.Close()
		return nil, err
	}

	f := &Forwarder{
		writeTimeout: writeTimeout,
		rtpDest:      rtpDest,
		rtcpDest:     rtcpDest,
		parent:       parent,
		rtpPC:        rtpPC,
		rtcpPC:       rtcpPC,
		done:         make(chan struct{}),
	}

	rtpPort, rtcpPort := f.Ports()
	parent.Log(logger.Info, "[forwarder] opened on :%d (RTP), :%d (RTCP)",
		rtpPort, rtcpPort)

	go f.run()
	return f, nil
}

// Close closes a Forwarder.
func (f *Forwarder) Close() {
	f.rtpPC.Close()
	f.rtcpPC.Close()
	<-f.done
}

func (f *Forwarder) run() {
	defer close(f.done)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		f.relay(f.rtpPC, f.rtpDest)
	}()

	go func() {
		defer wg.Done()
		f.relay(f.rtcpPC, f.rtcpDest)
	}()

	wg.Wait()
}

func (f *Forwarder) relay(pc *net.UDPConn, dest *net.UDPAddr) {
	buf := make([]byte, readBufferSize)

	for {
		n, _, err := pc.ReadFromUDP(buf)
		if err != nil {
			break
		}

		if !f.Active() {
			continue
		}

		pc.SetWriteDeadline(time.Now().Add(f.writeTimeout))
		pc.WriteToUDP(buf[:n], dest)
	}
}

// Ports returns the local listen ports (RTP, RTCP).
func (f *Forwarder) Ports() (int, int) {
	return f.rtpPC.LocalAddr().(*net.UDPAddr).Port,
		f.rtcpPC.LocalAddr().(*net.UDPAddr).Port
}

// Start enables relaying.
func (f *Forwarder) Start() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.active = true
}

// Stop disables relaying. The listen sockets stay open so that the
// publisher can resume with another RECORD.
func (f *Forwarder) Stop() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.active = false
}

// Active reports whether the forwarder is relaying.
func (f *Forwarder) Active() bool {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.active
}

// Attach records a pull attachment and returns the forward destination.
func (f *Forwarder) Attach() *net.UDPAddr {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.attached = true
	return f.rtpDest
}

// Attached reports whether a pull client has attached.
func (f *Forwarder) Attached() bool {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.attached
}
