package monitor

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gridwatch/pmugate/pkg/pmuhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusCounters(t *testing.T) {
	p := NewPrometheus()
	p.ConnInc()
	p.ConnInc()
	p.ConnDec()
	p.UpstreamTrafficAdd(120)
	p.FrameInc("IEEEC37.118", "CFG2")
	p.FrameInc("IEEEC37.118", "CFG2")
	p.FaultInc("SELFastMessage", "checksum")
	p.CellFaultInc("Macrodyne")
	p.StallResetInc()
	p.ConfigurationsSet(3)
	p.FrameHandleObserve("DATA", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.connGauge))
	assert.Equal(t, 120.0, testutil.ToFloat64(p.upstreamCounter))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.frameCounter.WithLabelValues("IEEEC37.118", "CFG2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.faultCounter.WithLabelValues("SELFastMessage", "checksum")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.cellFaultCounter.WithLabelValues("Macrodyne")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.stallResetCounter))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.configurationsGauge))
	assert.Equal(t, 1, testutil.CollectAndCount(p.frameHandleHistogram))
}

func TestMonitorEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	p := NewPrometheus()
	p.FrameInc("BPAPDCstream", "DATA")

	l := pmuhttp.New(nil)
	l.GET("/metrics", p.Monitor)
	w := httptest.NewRecorder()
	l.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `pmugate_ingest_frame_count{protocol="BPAPDCstream",type="DATA"} 1`)
}

func TestDisabledMonitor(t *testing.T) {
	m := NewMonitor(false)
	assert.IsType(t, &monitorEmpty{}, m)
	m.FrameInc("x", "y")
	m.ConnInc()
}
