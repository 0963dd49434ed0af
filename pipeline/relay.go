package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/nadimsalem/ei-go/model"
	"github.com/nadimsalem/ei-go/service/config"
	"github.com/nadimsalem/ei-go/service/lgr"
	"gocv.io/x/gocv"
)

// RelaySender pushes annotated frames to a viewer process, one JPEG per
// datagram, fire and forget. This is a live-view channel, not a transport:
// no retry, no ack, no sequence numbers; a dropped frame is simply skipped.
type RelaySender struct {
	conn    *net.UDPConn
	quality int
	maxSize int
}

func NewRelaySender(addr string, cfgSvc config.IService) (*RelaySender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("error resolving relay address %s: %w", addr, err)
	}

	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("error dialing relay address %s: %w", addr, err)
	}

	if err := conn.SetWriteBuffer(cfgSvc.GetRelaySendBuffer()); err != nil {
		lgr.Logger.Warn("error setting relay send buffer", slog.Any("error", err))
	}

	return &RelaySender{
		conn:    conn,
		quality: cfgSvc.GetRelayJPEGQuality(),
		maxSize: cfgSvc.GetRelaySendBuffer(),
	}, nil
}

func (s *RelaySender) Send(frame gocv.Mat) error {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, frame,
		[]int{gocv.IMWriteJpegQuality, s.quality})
	if err != nil {
		return fmt.Errorf("error encoding frame: %w", err)
	}
	defer buf.Close()

	payload := buf.GetBytes()
	if len(payload) > s.maxSize {
		return fmt.Errorf("frame of %d bytes exceeds datagram budget of %d", len(payload), s.maxSize)
	}

	if _, err := s.conn.Write(payload); err != nil {
		return fmt.Errorf("error sending frame: %w", err)
	}
	return nil
}

func (s *RelaySender) Close() {
	s.conn.Close()
}

// SharedFrame holds the single most recent relayed frame as JPEG bytes.
// One writer (the receiver loop), any number of readers; last write wins and
// no history is retained.
type SharedFrame struct {
	mu   sync.RWMutex
	jpeg []byte
}

func (f *SharedFrame) Set(jpeg []byte) {
	f.mu.Lock()
	f.jpeg = jpeg
	f.mu.Unlock()
}

// Latest returns the most recent frame, or false while no frame has ever
// arrived. Callers must not mutate the returned slice.
func (f *SharedFrame) Latest() ([]byte, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.jpeg, f.jpeg != nil
}

// RelayReceiver decodes arriving datagrams into a SharedFrame. A receive
// timeout is a normal poll cycle; a decode failure logs and continues.
type RelayReceiver struct {
	conn    *net.UDPConn
	shared  *SharedFrame
	timeout time.Duration
	bufSize int
}

func NewRelayReceiver(port int, shared *SharedFrame, cfgSvc config.IService) (*RelayReceiver, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, fmt.Errorf("error listening on relay port %d: %w", port, err)
	}

	return &RelayReceiver{
		conn:    conn,
		shared:  shared,
		timeout: time.Duration(cfgSvc.GetRelayReceiveTimeout()) * time.Second,
		bufSize: cfgSvc.GetRelaySendBuffer(),
	}, nil
}

// Addr reports the bound listen address. Tests bind port 0.
func (r *RelayReceiver) Addr() net.Addr {
	return r.conn.LocalAddr()
}

func (r *RelayReceiver) Run(canxCtx context.Context, errorStream chan interface{}, statsStream chan interface{}) {
	defer r.conn.Close()

	var received, errors = 0, 0
	var startTime = time.Now().Unix()

	defer func() {
		emit(canxCtx, statsStream, model.RelayStats{
			Name:     "relayReceiver",
			Received: received,
			Errors:   errors,
			Uptime:   time.Now().Unix() - startTime,
		})
	}()

	buf := make([]byte, r.bufSize)
	for {
		if canxCtx.Err() != nil {
			lgr.Logger.Info("relay receiver context cancelled")
			return
		}

		r.conn.SetReadDeadline(time.Now().Add(r.timeout))
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if canxCtx.Err() != nil {
				return
			}
			errors++
			emit(canxCtx, errorStream, model.GenError("relay_receiver",
				err,
				map[string]interface{}{},
				"error receiving frame datagram"))
			continue
		}

		payload := append([]byte{}, buf[:n]...)
		img, err := gocv.IMDecode(payload, gocv.IMReadColor)
		if err != nil || img.Empty() {
			errors++
			lgr.Logger.Warn("dropping undecodable frame datagram", slog.Int("bytes", n))
			img.Close()
			continue
		}
		img.Close()

		received++
		r.shared.Set(payload)
	}
}
