package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gridwatch/pmugate/internal/confstore"
	"github.com/gridwatch/pmugate/pkg/pmuhttp"
	"github.com/gridwatch/pmugate/pkg/pmulog"
	"github.com/gridwatch/pmugate/pkg/pmuproto"
	"github.com/gridwatch/pmugate/version"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// APIServer APIServer
type APIServer struct {
	pmulog.Log
	r    *pmuhttp.PmuHttp
	srv  *http.Server
	addr string
	s    *Server
}

func NewAPIServer(s *Server) *APIServer {
	log := pmulog.NewPmuLog("APIServer")
	r := pmuhttp.New(pmuhttp.LoggerWithPmulog(log))
	pprof.Register(r.GetGinRoute())

	a := &APIServer{
		Log:  log,
		r:    r,
		addr: s.opts.HTTPAddr,
		s:    s,
	}
	a.r.Use(pmuhttp.CORSMiddleware())
	a.setRoutes()
	return a
}

func (a *APIServer) Start(g *errgroup.Group) error {
	a.srv = &http.Server{
		Addr:              a.addr,
		Handler:           a.r,
		ReadHeaderTimeout: time.Second * 10,
	}
	g.Go(func() error {
		err := a.srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "api server")
		}
		return nil
	})
	return nil
}

func (a *APIServer) Stop(ctx context.Context) {
	if a.srv == nil {
		return
	}
	if err := a.srv.Shutdown(ctx); err != nil {
		a.Warn("api shutdown", zap.Error(err))
	}
}

func (a *APIServer) setRoutes() {
	a.r.GET("/health", func(c *pmuhttp.Context) {
		c.ResponseOK()
	})
	a.r.GET("/configurations", a.configurations)
	a.r.GET("/configurations/:idcode", a.configuration)
	a.r.GET("/configurations/:idcode/raw", a.configurationRaw)
	a.r.DELETE("/configurations/:idcode", a.deleteConfiguration)
	a.r.GET("/stats", a.stats)
	a.r.GET("/metrics", a.s.monitor.Monitor)
}

type configurationSummary struct {
	IDCode    uint16             `json:"idcode"`
	Protocol  pmuproto.Protocol  `json:"protocol"`
	Type      pmuproto.FrameType `json:"type"`
	Version   uint8              `json:"version"`
	FrameRate int16              `json:"frame_rate"`
	Timebase  uint32             `json:"timebase"`
	Stations  []string           `json:"stations"`
}

func (a *APIServer) configurations(c *pmuhttp.Context) {
	frames, err := a.s.store.List()
	if err != nil {
		a.Error("list configurations failed", zap.Error(err))
		c.ResponseErrorWithStatus(http.StatusInternalServerError, err)
		return
	}
	list := make([]configurationSummary, 0, len(frames))
	for _, f := range frames {
		sum := configurationSummary{
			IDCode:    f.IDCode,
			Protocol:  f.Protocol,
			Type:      f.Type,
			Version:   f.Version,
			FrameRate: f.FrameRate,
			Timebase:  f.Timebase,
			Stations:  make([]string, 0, len(f.Cells)),
		}
		for _, cell := range f.Cells {
			sum.Stations = append(sum.Stations, cell.StationLabel)
		}
		list = append(list, sum)
	}
	c.ResponseOKWithData(list)
}

func parseIDCode(c *pmuhttp.Context) (uint16, error) {
	id, err := strconv.ParseUint(c.Param("idcode"), 10, 16)
	if err != nil {
		return 0, errors.Errorf("invalid idcode %q", c.Param("idcode"))
	}
	return uint16(id), nil
}

func (a *APIServer) configuration(c *pmuhttp.Context) {
	id, err := parseIDCode(c)
	if err != nil {
		c.ResponseError(err)
		return
	}
	cfg, ok := a.s.store.Configuration(id)
	if !ok {
		c.ResponseErrorWithStatus(http.StatusNotFound, confstore.ErrNotFound)
		return
	}
	c.ResponseOKWithData(cfg)
}

func (a *APIServer) configurationRaw(c *pmuhttp.Context) {
	id, err := parseIDCode(c)
	if err != nil {
		c.ResponseError(err)
		return
	}
	raw, err := a.s.store.Raw(id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, confstore.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.ResponseErrorWithStatus(status, err)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", raw)
}

func (a *APIServer) deleteConfiguration(c *pmuhttp.Context) {
	id, err := parseIDCode(c)
	if err != nil {
		c.ResponseError(err)
		return
	}
	if err := a.s.store.Delete(id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, confstore.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.ResponseErrorWithStatus(status, err)
		return
	}
	a.s.refreshConfigurationCount()
	a.Info("configuration deleted", zap.Uint16("idcode", id))
	c.ResponseOK()
}

type statsResp struct {
	Version      string        `json:"version"`
	Uptime       string        `json:"uptime"`
	Conns        int64         `json:"conns"`
	InBytes      int64         `json:"in_bytes"`
	Frames       int64         `json:"frames"`
	Faults       int64         `json:"faults"`
	CellFaults   int64         `json:"cell_faults"`
	StallResets  int64         `json:"stall_resets"`
	DroppedConns int64         `json:"dropped_conns"`
	Devices      []deviceStats `json:"devices"`
}

func (a *APIServer) stats(c *pmuhttp.Context) {
	s := a.s
	c.ResponseOKWithData(statsResp{
		Version:      version.Version,
		Uptime:       time.Since(s.start).Truncate(time.Second).String(),
		Conns:        s.conns.Load(),
		InBytes:      s.inBytes.Load(),
		Frames:       s.frames.Load(),
		Faults:       s.faults.Load(),
		CellFaults:   s.cellFaults.Load(),
		StallResets:  s.stallResets.Load(),
		DroppedConns: s.droppedConns.Load(),
		Devices:      s.Devices(),
	})
}
