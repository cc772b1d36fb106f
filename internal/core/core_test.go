package core

import (
	"net"
	"os"
	"testing"

	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/conn"
	"github.com/bluenviron/gortsplib/v4/pkg/headers"
	"github.com/stretchr/testify/require"
)

func writeTempFile(byts []byte) (string, error) {
	tmpf, err := os.CreateTemp(os.TempDir(), "rendezvous-")
	if err != nil {
		return "", err
	}
	defer tmpf.Close()

	_, err = tmpf.Write(byts)
	if err != nil {
		return "", err
	}

	return tmpf.Name(), nil
}

func newInstance(conf string) (*Core, bool) {
	if conf == "" {
		return New([]string{})
	}

	tmpf, err := writeTempFile([]byte(conf))
	if err != nil {
		return nil, false
	}
	defer os.Remove(tmpf)

	return New([]string{tmpf})
}

func doRequest(t *testing.T, co *conn.Conn, req *base.Request) *base.Response {
	err := co.WriteRequest(req)
	require.NoError(t, err)
	res, err := co.ReadResponse()
	require.NoError(t, err)
	return res
}

func TestCoreRendezvous(t *testing.T) {
	p, ok := newInstance("rtspAddress: 127.0.0.1:8598\n")
	require.Equal(t, true, ok)
	defer p.Close()

	publisher, err := net.Dial("tcp", "127.0.0.1:8598")
	require.NoError(t, err)
	defer publisher.Close()
	pconn := conn.NewConn(publisher)

	res := doRequest(t, pconn, &base.Request{
		Method: base.Options,
		URL:    mustParseURL(t, "rtsp://127.0.0.1:8598/PUSH/live/cam1"),
		Header: base.Header{"CSeq": base.HeaderValue{"1"}},
	})
	require.Equal(t, base.StatusOK, res.StatusCode)
	require.Equal(t, base.HeaderValue{"1"}, res.Header["CSeq"])

	res = doRequest(t, pconn, &base.Request{
		Method: base.Announce,
		URL:    mustParseURL(t, "rtsp://127.0.0.1:8598/PUSH/live/cam1"),
		Header: base.Header{
			"CSeq":         base.HeaderValue{"2"},
			"Content-Type": base.HeaderValue{"application/sdp"},
		},
		Body: testSDP,
	})
	require.Equal(t, base.StatusOK, res.StatusCode)

	res = doRequest(t, pconn, &base.Request{
		Method: base.Setup,
		URL:    mustParseURL(t, "rtsp://127.0.0.1:8598/PUSH/live/cam1/track1"),
		Header: base.Header{
			"CSeq":      base.HeaderValue{"3"},
			"Transport": unicastOffer(&[2]int{35466, 35467}),
		},
	})
	require.Equal(t, base.StatusOK, res.StatusCode)
	session := res.Header["Session"]
	require.Equal(t, 1, len(session))

	res = doRequest(t, pconn, &base.Request{
		Method: base.Record,
		URL:    mustParseURL(t, "rtsp://127.0.0.1:8598/PUSH/live/cam1"),
		Header: base.Header{
			"CSeq":    base.HeaderValue{"4"},
			"Session": session,
		},
	})
	require.Equal(t, base.StatusOK, res.StatusCode)

	// a viewer on a separate connection finds the stream under the pull path
	viewer, err := net.Dial("tcp", "127.0.0.1:8598")
	require.NoError(t, err)
	defer viewer.Close()
	vconn := conn.NewConn(viewer)

	res = doRequest(t, vconn, &base.Request{
		Method: base.Describe,
		URL:    mustParseURL(t, "rtsp://127.0.0.1:8598/PULL/live/cam1"),
		Header: base.Header{"CSeq": base.HeaderValue{"1"}},
	})
	require.Equal(t, base.StatusOK, res.StatusCode)
	require.Equal(t, testSDP, res.Body)
	require.Equal(t, base.HeaderValue{"rtsp://127.0.0.1:8598/PULL/live/cam1"},
		res.Header["Content-Base"])

	res = doRequest(t, vconn, &base.Request{
		Method: base.Setup,
		URL:    mustParseURL(t, "rtsp://127.0.0.1:8598/PULL/live/cam1/track1"),
		Header: base.Header{
			"CSeq":      base.HeaderValue{"2"},
			"Transport": unicastOffer(&[2]int{40000, 40001}),
		},
	})
	require.Equal(t, base.StatusOK, res.StatusCode)

	var th headers.Transport
	err = th.Unmarshal(res.Header["Transport"])
	require.NoError(t, err)
	require.NotNil(t, th.Delivery)
	require.Equal(t, headers.TransportDeliveryMulticast, *th.Delivery)
	require.NotNil(t, th.Destination)

	res = doRequest(t, vconn, &base.Request{
		Method: base.Play,
		URL:    mustParseURL(t, "rtsp://127.0.0.1:8598/PULL/live/cam1"),
		Header: base.Header{"CSeq": base.HeaderValue{"3"}},
	})
	require.Equal(t, base.StatusOK, res.StatusCode)

	// publisher goes away; the registration stays resolvable
	res = doRequest(t, pconn, &base.Request{
		Method: base.Teardown,
		URL:    mustParseURL(t, "rtsp://127.0.0.1:8598/PUSH/live/cam1"),
		Header: base.Header{
			"CSeq":    base.HeaderValue{"5"},
			"Session": session,
		},
	})
	require.Equal(t, base.StatusOK, res.StatusCode)

	res = doRequest(t, vconn, &base.Request{
		Method: base.Describe,
		URL:    mustParseURL(t, "rtsp://127.0.0.1:8598/PULL/live/cam1"),
		Header: base.Header{"CSeq": base.HeaderValue{"4"}},
	})
	require.Equal(t, base.StatusOK, res.StatusCode)
}

func TestCoreMalformedRequest(t *testing.T) {
	p, ok := newInstance("rtspAddress: 127.0.0.1:8599\n")
	require.Equal(t, true, ok)
	defer p.Close()

	nconn, err := net.Dial("tcp", "127.0.0.1:8599")
	require.NoError(t, err)
	defer nconn.Close()
	co := conn.NewConn(nconn)

	res := doRequest(t, co, &base.Request{
		Method: base.Method("UNHANDLED"),
		URL:    mustParseURL(t, "rtsp://127.0.0.1:8599/"),
		Header: base.Header{"CSeq": base.HeaderValue{"1"}},
	})
	require.Equal(t, base.StatusBadRequest, res.StatusCode)
}

func TestCoreErrors(t *testing.T) {
	_, ok := newInstance("invalid: parameter\n")
	require.Equal(t, false, ok)

	_, ok = newInstance("rtspAddress: invalid\n")
	require.Equal(t, false, ok)
}
