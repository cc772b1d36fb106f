package core

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/conn"
	"github.com/bluenviron/gortsplib/v4/pkg/headers"
	"github.com/bluenviron/gortsplib/v4/pkg/sdp"
	"github.com/google/uuid"

	"github.com/mediarelay/rtsp-rendezvous/internal/forwarder"
	"github.com/mediarelay/rtsp-rendezvous/internal/logger"
	"github.com/mediarelay/rtsp-rendezvous/internal/registry"
)

const (
	multicastTTL = 127
)

type rtspConnParent interface {
	logger.Writer
}

// rtspConn dispatches the RTSP requests of a single connection and drives
// the shared registry. Message framing is delegated to gortsplib.
type rtspConn struct {
	s      *rtspServer
	parent rtspConnParent

	nconn net.Conn
	conn  *conn.Conn
}

func newRTSPConn(s *rtspServer, nconn net.Conn) *rtspConn {
	c := &rtspConn{
		s:      s,
		parent: s.parent,
		nconn:  nconn,
		conn:   conn.NewConn(nconn),
	}

	c.log(logger.Info, "opened")
	return c
}

// Log implements forwarder.Parent.
func (c *rtspConn) Log(level logger.Level, format string, args ...interface{}) {
	c.log(level, format, args...)
}

func (c *rtspConn) log(level logger.Level, format string, args ...interface{}) {
	c.parent.Log(level, "[conn %v] "+format,
		append([]interface{}{c.nconn.RemoteAddr()}, args...)...)
}

func (c *rtspConn) close() {
	c.nconn.Close()
}

func (c *rtspConn) run() {
	defer c.nconn.Close()

	for {
		c.nconn.SetReadDeadline(time.Now().Add(c.s.readTimeout))
		req, err := c.conn.ReadRequest()
		if err != nil {
			if err != io.EOF {
				c.log(logger.Error, "%s", err)
			}
			break
		}

		res, err := c.handleRequest(req)
		if err != nil {
			c.log(logger.Error, "%s", err)
			res = &base.Response{
				StatusCode: base.StatusBadRequest,
			}
		}

		if res.Header == nil {
			res.Header = make(base.Header)
		}
		if cseq, ok := req.Header["CSeq"]; ok {
			res.Header["CSeq"] = cseq
		}

		c.nconn.SetWriteDeadline(time.Now().Add(c.s.writeTimeout))
		err2 := c.conn.WriteResponse(res)
		if err != nil || err2 != nil {
			break
		}
	}

	c.log(logger.Info, "closed")
}

// getSessionID returns the session id carried by a request, if any.
func getSessionID(header base.Header) string {
	if h, ok := header["Session"]; ok && len(h) == 1 {
		return h[0]
	}
	return ""
}

// sessionID returns the request's session id, assigning a fresh one when
// the caller does not carry one yet.
func sessionID(req *base.Request) string {
	if id := getSessionID(req.Header); id != "" {
		return id
	}
	return uuid.New().String()
}

func (c *rtspConn) handleRequest(req *base.Request) (*base.Response, error) {
	c.log(logger.Debug, "%s %v", req.Method, req.URL)

	switch req.Method {
	case base.Options:
		return &base.Response{
			StatusCode: base.StatusOK,
			Header: base.Header{
				"Public": base.HeaderValue{strings.Join([]string{
					string(base.Describe),
					string(base.Announce),
					string(base.Setup),
					string(base.Play),
					string(base.Record),
					string(base.GetParameter),
					string(base.Teardown),
				}, ", ")},
			},
		}, nil

	case base.Announce:
		return c.handleAnnounce(req)

	case base.Describe:
		return c.handleDescribe(req)

	case base.Setup:
		if _, ok := registry.PullAlias(req.URL.Path); ok {
			return c.handleSetupPull(req)
		}
		return c.handleSetupPush(req)

	case base.Record:
		return c.handleRecord(req)

	case base.Teardown:
		return c.handleTeardown(req)

	case base.Play, base.GetParameter:
		return &base.Response{
			StatusCode: base.StatusOK,
		}, nil
	}

	return nil, fmt.Errorf("unhandled method '%s'", req.Method)
}

func (c *rtspConn) handleAnnounce(req *base.Request) (*base.Response, error) {
	path := req.URL.Path

	// reject malformed SDPs before anything is registered
	var sd sdp.SessionDescription
	err := sd.Unmarshal(req.Body)
	if err != nil {
		c.log(logger.Warn, "invalid SDP: %s", err)
		return &base.Response{
			StatusCode: base.StatusBadRequest,
		}, nil
	}

	_, err = c.s.registry.AnnouncePush(path, req.Body)
	if err != nil {
		if errors.Is(err, registry.ErrPathExists) {
			c.log(logger.Warn, "someone is already publishing on path '%s'", path)
			return &base.Response{
				StatusCode: base.StatusForbidden,
			}, nil
		}

		// malformed control attribute
		c.log(logger.Warn, "%s", err)
		return &base.Response{
			StatusCode: base.StatusBadRequest,
		}, nil
	}

	c.log(logger.Info, "stream registered on path '%s'", path)

	return &base.Response{
		StatusCode: base.StatusOK,
	}, nil
}

func (c *rtspConn) handleSetupPush(req *base.Request) (*base.Response, error) {
	sr, err := c.s.registry.Resolve(req.URL.Path)
	if err != nil {
		return &base.Response{
			StatusCode: base.StatusNotFound,
		}, nil
	}

	var offers headers.Transports
	err = offers.Unmarshal(req.Header["Transport"])
	if err != nil {
		return &base.Response{
			StatusCode: base.StatusBadRequest,
		}, nil
	}

	// collect acceptable offers before allocating anything
	var accepted []headers.Transport
	for _, offer := range offers {
		if offer.Protocol != headers.TransportProtocolUDP {
			continue
		}
		if offer.Delivery != nil && *offer.Delivery == headers.TransportDeliveryMulticast {
			continue
		}
		accepted = append(accepted, offer)
	}

	if len(accepted) == 0 {
		return &base.Response{
			StatusCode: base.StatusUnsupportedTransport,
		}, nil
	}

	// bind every forwarder before touching the Registration, so that a
	// failed bind leaves no partial state behind
	fws, err := allocateForwarders(len(accepted), func() (*forwarder.Forwarder, error) {
		return c.s.newForwarder(c)
	})
	if err != nil {
		return nil, err
	}

	id := sessionID(req)

	var resTransports headers.Transports
	for i, fw := range fws {
		sr.AddForwarder(id, fw)

		rtpPort, rtcpPort := fw.Ports()
		delivery := headers.TransportDeliveryUnicast
		resTransports = append(resTransports, headers.Transport{
			Protocol:    headers.TransportProtocolUDP,
			Delivery:    &delivery,
			ClientPorts: accepted[i].ClientPorts,
			ServerPorts: &[2]int{rtpPort, rtcpPort},
		})
	}

	return &base.Response{
		StatusCode: base.StatusOK,
		Header: base.Header{
			"Transport": resTransports.Marshal(),
			"Session":   base.HeaderValue{id},
		},
	}, nil
}

func (c *rtspConn) handleSetupPull(req *base.Request) (*base.Response, error) {
	sr, err := c.s.registry.ResolvePullAlias(req.URL.Path)
	if err != nil {
		return &base.Response{
			StatusCode: base.StatusNotFound,
		}, nil
	}

	fw, ok := sr.SessionForwarder()
	if !ok {
		return &base.Response{
			StatusCode: base.StatusNotFound,
		}, nil
	}

	id := sessionID(req)

	// the transport is reflected, not negotiated: the viewer is pointed at
	// the relay destination regardless of what it offered
	dest := fw.Attach()
	delivery := headers.TransportDeliveryMulticast
	ttl := uint(multicastTTL)
	destIP := dest.IP

	th := headers.Transport{
		Protocol:    headers.TransportProtocolUDP,
		Delivery:    &delivery,
		TTL:         &ttl,
		Destination: &destIP,
		Ports:       &[2]int{dest.Port, c.s.rtcpPort},
	}

	return &base.Response{
		StatusCode: base.StatusOK,
		Header: base.Header{
			"Transport": th.Marshal(),
			"Session":   base.HeaderValue{id},
		},
	}, nil
}

func (c *rtspConn) handleDescribe(req *base.Request) (*base.Response, error) {
	sr, err := c.s.registry.ResolvePullAlias(req.URL.Path)
	if err != nil {
		return &base.Response{
			StatusCode: base.StatusNotFound,
		}, nil
	}

	// Content-Base points at the pull URI, so that the viewer resolves its
	// track control URLs inside the pull namespace
	return &base.Response{
		StatusCode: base.StatusOK,
		Header: base.Header{
			"Content-Base": base.HeaderValue{req.URL.String()},
			"Content-Type": base.HeaderValue{"application/sdp"},
		},
		Body: sr.SDP(),
	}, nil
}

func (c *rtspConn) handleRecord(req *base.Request) (*base.Response, error) {
	// path can end with a slash, remove it
	path := strings.TrimSuffix(req.URL.Path, "/")

	sr, err := c.s.registry.Resolve(path)
	if err != nil {
		return &base.Response{
			StatusCode: base.StatusNotFound,
		}, nil
	}

	id := getSessionID(req.Header)
	sr.StartSession(id)

	c.log(logger.Info, "session %s is publishing on path '%s'", id, path)

	res := &base.Response{
		StatusCode: base.StatusOK,
		Header:     base.Header{},
	}
	if id != "" {
		res.Header["Session"] = base.HeaderValue{id}
	}
	return res, nil
}

func (c *rtspConn) handleTeardown(req *base.Request) (*base.Response, error) {
	// path can end with a slash, remove it
	path := strings.TrimSuffix(req.URL.Path, "/")

	sr, err := c.s.registry.Resolve(path)
	if err != nil {
		// viewers tear down with pull paths
		sr, err = c.s.registry.ResolvePullAlias(path)
	}
	if err != nil {
		return &base.Response{
			StatusCode: base.StatusNotFound,
		}, nil
	}

	id := getSessionID(req.Header)
	sr.StopSession(id)

	res := &base.Response{
		StatusCode: base.StatusOK,
		Header:     base.Header{},
	}
	if id != "" {
		res.Header["Session"] = base.HeaderValue{id}
	}
	return res, nil
}
