package server

import (
	"context"
	"sync"
	"time"

	"github.com/RussellLuo/timingwheel"
	"github.com/gridwatch/pmugate/pkg/pmulog"
	"github.com/gridwatch/pmugate/pkg/pmuproto"
	"github.com/panjf2000/gnet/v2"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ingest is the gnet event handler of the device listener.
type ingest struct {
	gnet.BuiltinEventEngine
	pmulog.Log
	s      *Server
	eng    gnet.Engine
	booted atomic.Bool
	connID atomic.Int64
}

func newIngest(s *Server) *ingest {
	return &ingest{
		s:   s,
		Log: pmulog.NewPmuLog("Ingest"),
	}
}

func (i *ingest) run(addr string) error {
	return gnet.Run(i, addr,
		gnet.WithMulticore(true),
		gnet.WithReusePort(true),
		gnet.WithTCPKeepAlive(time.Minute),
		gnet.WithLogLevel(i.s.opts.Logger.Level),
	)
}

func (i *ingest) stop(ctx context.Context) {
	if !i.booted.Load() {
		return
	}
	if err := i.eng.Stop(ctx); err != nil {
		i.Warn("stop engine", zap.Error(err))
	}
}

func (i *ingest) OnBoot(eng gnet.Engine) gnet.Action {
	i.eng = eng
	i.booted.Store(true)
	return gnet.None
}

func (i *ingest) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	ctx := newConnContext(i.s, i.connID.Inc(), c.RemoteAddr().String())
	c.SetContext(ctx)
	i.s.conns.Inc()
	i.s.monitor.ConnInc()
	i.Debug("device connected", zap.Int64("conn", ctx.id), zap.String("remote", ctx.remoteAddr))
	return nil, gnet.None
}

func (i *ingest) OnClose(c gnet.Conn, err error) gnet.Action {
	ctx, ok := c.Context().(*connContext)
	if !ok {
		return gnet.None
	}
	ctx.release()
	i.s.conns.Dec()
	i.s.monitor.ConnDec()
	i.Debug("device disconnected", zap.Int64("conn", ctx.id), zap.String("remote", ctx.remoteAddr), zap.Error(err))
	return gnet.None
}

func (i *ingest) OnTraffic(c gnet.Conn) gnet.Action {
	ctx, ok := c.Context().(*connContext)
	if !ok {
		return gnet.Close
	}
	buf, err := c.Next(-1)
	if err != nil {
		i.Warn("read inbound buffer", zap.Error(err))
		return gnet.Close
	}
	if err := ctx.onData(buf); err != nil {
		i.s.droppedConns.Inc()
		i.Warn("closing connection", zap.Int64("conn", ctx.id), zap.String("remote", ctx.remoteAddr), zap.Error(err))
		return gnet.Close
	}
	return gnet.None
}

var errBufferOverflow = errors.New("partial frame exceeds reader.maxBuffer")

// connContext owns the frame reader of one connection. onData runs on the event loop,
// the stall timer on the timing wheel, so both go through mu.
type connContext struct {
	pmulog.Log
	s          *Server
	id         int64
	remoteAddr string

	mu         sync.Mutex
	reader     *pmuproto.Reader
	stallTimer *timingwheel.Timer
	lastData   time.Time
	closed     bool
}

func newConnContext(s *Server, id int64, remoteAddr string) *connContext {
	return &connContext{
		Log:        pmulog.NewPmuLog("Conn"),
		s:          s,
		id:         id,
		remoteAddr: remoteAddr,
		reader:     s.codec.NewReader(),
	}
}

func (c *connContext) onData(data []byte) error {
	c.s.inBytes.Add(int64(len(data)))
	c.s.monitor.UpstreamTrafficAdd(len(data))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.lastData = time.Now()
	if _, err := c.reader.Write(data); err != nil {
		return err
	}
	c.reader.Frames(func(frame pmuproto.Frame, err error) bool {
		if err != nil {
			c.s.onFault(err)
			return true
		}
		c.dispatch(frame)
		return true
	})

	if c.reader.Buffered() > c.s.opts.Reader.MaxBuffer {
		return errBufferOverflow
	}
	c.armStallTimer()
	return nil
}

func (c *connContext) dispatch(frame pmuproto.Frame) {
	err := c.s.handlePool.Submit(func() {
		c.s.handleFrame(frame, c.remoteAddr)
	})
	if err != nil {
		c.Error("submit frame failed", zap.Error(err), zap.Uint16("idcode", frame.GetIDCode()))
	}
}

// armStallTimer must be called with mu held.
func (c *connContext) armStallTimer() {
	if c.stallTimer != nil {
		c.stallTimer.Stop()
		c.stallTimer = nil
	}
	timeout := c.s.opts.Reader.StallTimeout
	if c.reader.Buffered() == 0 || timeout <= 0 {
		return
	}
	c.stallTimer = c.s.timingWheel.AfterFunc(timeout, c.onStall)
}

func (c *connContext) onStall() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.reader.Buffered() == 0 {
		return
	}
	// the wheel rounds to its tick, so the timer can fire a little early
	if wait := c.s.opts.Reader.StallTimeout - time.Since(c.lastData); wait > 0 {
		c.stallTimer = c.s.timingWheel.AfterFunc(wait, c.onStall)
		return
	}
	state := c.reader.State()
	dropped := c.reader.Reset()
	c.stallTimer = nil
	c.s.stallResets.Inc()
	c.s.monitor.StallResetInc()
	c.Warn("partial frame stalled", zap.Int64("conn", c.id), zap.String("remote", c.remoteAddr),
		zap.String("state", state.String()), zap.Int("dropped", dropped))
}

func (c *connContext) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.stallTimer != nil {
		c.stallTimer.Stop()
		c.stallTimer = nil
	}
	c.reader.Release()
}
