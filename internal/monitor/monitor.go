package monitor

import (
	"time"

	"github.com/gridwatch/pmugate/pkg/pmuhttp"
)

var monitorGlob IMonitor
var monitorOnGlob bool

// SetMonitorOn SetMonitorOn
func SetMonitorOn(on bool) {
	monitorOnGlob = on
}

// GetMonitor returns the process wide monitor, created on first use.
func GetMonitor() IMonitor {
	if monitorGlob == nil {
		monitorGlob = NewMonitor(monitorOnGlob)
	}
	return monitorGlob
}

func NewMonitor(on bool) IMonitor {
	if !on {
		return &monitorEmpty{}
	}
	return NewPrometheus()
}

type IMonitor interface {
	Start()
	Stop()
	Monitor(c *pmuhttp.Context) // exposes the metrics endpoint

	ConnInc()
	ConnDec()
	UpstreamTrafficAdd(v int) // bytes received from devices

	FrameInc(protocol, frameType string)
	FaultInc(protocol, kind string)
	CellFaultInc(protocol string)
	StallResetInc() // partial frames dropped by the stall timer

	ConfigurationsSet(v int)
	FrameHandleObserve(frameType string, v time.Duration)
}

type monitorEmpty struct {
}

func (m *monitorEmpty) Start()                     {}
func (m *monitorEmpty) Stop()                      {}
func (m *monitorEmpty) Monitor(c *pmuhttp.Context) {}
func (m *monitorEmpty) ConnInc()                   {}
func (m *monitorEmpty) ConnDec()                   {}
func (m *monitorEmpty) UpstreamTrafficAdd(v int)   {}

func (m *monitorEmpty) FrameInc(protocol, frameType string) {}
func (m *monitorEmpty) FaultInc(protocol, kind string)      {}
func (m *monitorEmpty) CellFaultInc(protocol string)        {}
func (m *monitorEmpty) StallResetInc()                      {}

func (m *monitorEmpty) ConfigurationsSet(v int)                              {}
func (m *monitorEmpty) FrameHandleObserve(frameType string, v time.Duration) {}
