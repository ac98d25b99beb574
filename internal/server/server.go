package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/RussellLuo/timingwheel"
	"github.com/gin-gonic/gin"
	"github.com/gridwatch/pmugate/internal/confstore"
	"github.com/gridwatch/pmugate/internal/monitor"
	"github.com/gridwatch/pmugate/internal/options"
	"github.com/gridwatch/pmugate/pkg/pmulog"
	"github.com/gridwatch/pmugate/pkg/pmuproto"
	"github.com/gridwatch/pmugate/version"
	"github.com/judwhite/go-svc"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type stats struct {
	conns        atomic.Int64
	inBytes      atomic.Int64
	frames       atomic.Int64
	faults       atomic.Int64
	cellFaults   atomic.Int64
	stallResets  atomic.Int64
	droppedConns atomic.Int64 // closed for exceeding reader.maxBuffer
}

// deviceStats activity of one ID code.
type deviceStats struct {
	IDCode     uint16             `json:"idcode"`
	Protocol   pmuproto.Protocol  `json:"protocol"`
	DataFrames int64              `json:"data_frames"`
	LastType   pmuproto.FrameType `json:"last_type"`
	LastSeen   time.Time          `json:"last_seen"`
	LastSample time.Time          `json:"last_sample"` // timestamp carried by the last data frame
}

type Server struct {
	stats
	pmulog.Log
	opts        *options.Options
	handlePool  *ants.Pool
	timingWheel *timingwheel.TimingWheel
	store       *confstore.Store
	codec       *pmuproto.Codec
	monitor     monitor.IMonitor
	ingest      *ingest
	apiServer   *APIServer
	iniWatcher  *IniWatcher
	start       time.Time

	devicesMu sync.RWMutex
	devices   map[uint16]*deviceStats

	group  *errgroup.Group
	cancel context.CancelFunc
}

func New(opts *options.Options) *Server {
	s := &Server{
		opts:        opts,
		Log:         pmulog.NewPmuLog("Server"),
		timingWheel: timingwheel.NewTimingWheel(opts.TimingWheelTick, opts.TimingWheelSize),
		start:       time.Now().UTC(),
		devices:     make(map[uint16]*deviceStats),
	}

	gin.SetMode(opts.GinMode)

	monitor.SetMonitorOn(opts.Monitor.On)
	s.monitor = monitor.GetMonitor()

	storeOpts := confstore.NewOptions()
	storeOpts.DataDir = opts.DataDir
	storeOpts.CacheSize = opts.ConfigCache.Size
	s.store = confstore.New(storeOpts)

	s.codec = pmuproto.New(
		pmuproto.WithProtocol(opts.Protocol),
		pmuproto.WithStore(s.store),
		pmuproto.WithFaultHandler(s.onCellFault),
	)

	var err error
	s.handlePool, err = ants.NewPool(opts.HandlePoolSize, ants.WithPanicHandler(func(i interface{}) {
		s.Error("frame handler panic", zap.Any("panic", i), zap.Stack("stack"))
	}))
	if err != nil {
		panic(err)
	}

	s.ingest = newIngest(s)
	s.apiServer = NewAPIServer(s)
	if opts.IniDir != "" {
		s.iniWatcher = NewIniWatcher(s, opts.IniDir)
	}
	return s
}

func (s *Server) Init(env svc.Environment) error {
	if env.IsWindowsService() {
		dir := filepath.Dir(os.Args[0])
		return os.Chdir(dir)
	}
	return nil
}

func (s *Server) Start() error {
	s.Info("pmugate is starting...")
	s.Info(fmt.Sprintf("  Mode:  %s", s.opts.Mode))
	s.Info(fmt.Sprintf("  Version:  %s", version.Version))
	s.Info(fmt.Sprintf("  Git:  %s-%s", version.CommitDate, version.Commit))
	s.Info(fmt.Sprintf("  Go build:  %s", runtime.Version()))
	s.Info(fmt.Sprintf("  DataDir:  %s", s.opts.DataDir))
	if s.opts.Protocol != pmuproto.ProtocolUnknown {
		s.Info(fmt.Sprintf("  Protocol:  %s", s.opts.Protocol))
	}

	if err := s.store.Open(); err != nil {
		return err
	}
	s.refreshConfigurationCount()
	if err := os.WriteFile(s.opts.PidFile(), []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		s.Warn("write pid file failed", zap.Error(err))
	}

	s.timingWheel.Start()
	s.monitor.Start()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.group, ctx = errgroup.WithContext(ctx)

	if s.iniWatcher != nil {
		if err := s.iniWatcher.Start(ctx, s.group); err != nil {
			cancel()
			return err
		}
		s.Info(fmt.Sprintf("Watching device files in %s", s.opts.IniDir))
	}

	if err := s.apiServer.Start(s.group); err != nil {
		cancel()
		return err
	}
	s.Info(fmt.Sprintf("Listening for HTTP api on http://%s", s.opts.HTTPAddr))

	s.group.Go(func() error {
		return s.ingest.run(s.opts.Addr)
	})
	s.Info(fmt.Sprintf("Listening for devices on %s", s.opts.Addr))
	return nil
}

func (s *Server) Stop() error {
	s.Info("pmugate is stopping...")
	defer s.Info("pmugate exited")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if s.cancel != nil {
		s.cancel()
	}
	s.ingest.stop(ctx)
	s.apiServer.Stop(ctx)

	var err error
	if s.group != nil {
		err = s.group.Wait()
	}
	s.handlePool.Release()
	s.timingWheel.Stop()
	s.monitor.Stop()
	if cerr := s.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	_ = os.Remove(s.opts.PidFile())
	_ = pmulog.Sync()
	return err
}

// handleFrame runs on the handle pool for every complete frame.
func (s *Server) handleFrame(frame pmuproto.Frame, remoteAddr string) {
	start := time.Now()
	typ := frame.GetFrameType()
	s.frames.Inc()
	s.monitor.FrameInc(frame.GetProtocol().String(), typ.String())

	switch f := frame.(type) {
	case *pmuproto.ConfigurationFrame:
		// already stored by the codec
		s.Info("configuration received", zap.Uint16("idcode", f.IDCode), zap.String("protocol", f.Protocol.String()),
			zap.String("type", typ.String()), zap.Int("cells", len(f.Cells)), zap.String("remote", remoteAddr))
		s.refreshConfigurationCount()
	case *pmuproto.DataFrame:
		s.Trace("data frame", "data", zap.Uint16("idcode", f.IDCode), zap.Time("timestamp", f.Timestamp))
	case *pmuproto.HeaderFrame:
		s.Info("header frame", zap.Uint16("idcode", f.IDCode), zap.String("text", f.Text), zap.String("remote", remoteAddr))
	case *pmuproto.CommandFrame:
		s.Debug("command frame", zap.Uint16("idcode", f.IDCode), zap.String("command", f.Command.String()))
	}
	s.touchDevice(frame)
	s.monitor.FrameHandleObserve(typ.String(), time.Since(start))
}

func (s *Server) touchDevice(frame pmuproto.Frame) {
	id := frame.GetIDCode()
	s.devicesMu.Lock()
	defer s.devicesMu.Unlock()
	d := s.devices[id]
	if d == nil {
		d = &deviceStats{IDCode: id}
		s.devices[id] = d
	}
	d.Protocol = frame.GetProtocol()
	d.LastType = frame.GetFrameType()
	d.LastSeen = time.Now().UTC()
	if df, ok := frame.(*pmuproto.DataFrame); ok {
		d.DataFrames++
		// frames of one connection are handled concurrently
		if df.Timestamp.After(d.LastSample) {
			d.LastSample = df.Timestamp
		}
	}
}

// onFault records a decode error of a connection stream.
func (s *Server) onFault(err error) {
	s.faults.Inc()
	s.monitor.FaultInc(pmuproto.ProtocolOf(err).String(), pmuproto.KindName(err))
}

func (s *Server) onCellFault(err error) {
	s.cellFaults.Inc()
	s.monitor.CellFaultInc(pmuproto.ProtocolOf(err).String())
}

func (s *Server) refreshConfigurationCount() {
	n, err := s.store.Count()
	if err != nil {
		s.Warn("count configurations failed", zap.Error(err))
		return
	}
	s.monitor.ConfigurationsSet(n)
}

// Devices snapshot of device activity ordered by ID code.
func (s *Server) Devices() []deviceStats {
	s.devicesMu.RLock()
	list := make([]deviceStats, 0, len(s.devices))
	for _, d := range s.devices {
		list = append(list, *d)
	}
	s.devicesMu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].IDCode < list[j].IDCode })
	return list
}
