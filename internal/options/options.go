package options

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gridwatch/pmugate/pkg/pmulog"
	"github.com/gridwatch/pmugate/pkg/pmuproto"
	"github.com/gridwatch/pmugate/version"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Mode string

const (
	DebugMode   Mode = "debug"
	ReleaseMode Mode = "release"
	TestMode    Mode = "test"
)

type Options struct {
	vp       *viper.Viper
	Mode     Mode
	Version  string
	Addr     string // ingest listener, e.g. tcp://0.0.0.0:4712
	HTTPAddr string // api listener
	RootDir  string
	DataDir  string // pebble configuration store
	GinMode  string

	Logger struct {
		Dir     string
		Level   zapcore.Level
		LineNum bool
		TraceOn bool
	}

	// Protocol pins every connection to one variant. ProtocolUnknown detects per frame.
	Protocol pmuproto.Protocol

	Reader struct {
		MaxBuffer    int           // bytes a connection may hold without completing a frame
		StallTimeout time.Duration // partial frames older than this are dropped
	}

	ConfigCache struct {
		Size int // lru entries in front of pebble
	}

	HandlePoolSize  int    // ants pool size for completed frames
	IniDir          string // watched directory of .toml device files, empty disables
	TimingWheelTick time.Duration
	TimingWheelSize int64

	Monitor struct {
		On bool
	}
}

func New(op ...Option) *Options {
	homeDir, err := GetHomeDir()
	if err != nil {
		panic(err)
	}
	opts := &Options{
		Mode:            DebugMode,
		Version:         version.Version,
		Addr:            "tcp://0.0.0.0:4712",
		HTTPAddr:        "0.0.0.0:4713",
		RootDir:         filepath.Join(homeDir, "pmugate"),
		GinMode:         gin.ReleaseMode,
		HandlePoolSize:  1024,
		TimingWheelTick: time.Millisecond * 10,
		TimingWheelSize: 100,
	}
	opts.Logger.Level = zapcore.InfoLevel
	opts.Logger.Dir = "logs"
	opts.Reader.MaxBuffer = 4 * pmuproto.MaxFrameSize
	opts.Reader.StallTimeout = time.Second * 5
	opts.ConfigCache.Size = 256
	opts.Monitor.On = true

	for _, o := range op {
		o(opts)
	}
	return opts
}

func GetHomeDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err == nil {
		return homeDir, nil
	}
	u, err := user.Current()
	if err == nil {
		return u.HomeDir, nil
	}
	return "", errors.New("user home directory not found")
}

// ConfigureWithViper overlays the values present in vp on the defaults.
func (o *Options) ConfigureWithViper(vp *viper.Viper) {
	o.vp = vp

	o.RootDir = o.getString("rootDir", o.RootDir)

	modeStr := o.getString("mode", string(o.Mode))
	if strings.TrimSpace(modeStr) == "" {
		o.Mode = DebugMode
	} else {
		o.Mode = Mode(modeStr)
	}
	if o.Mode == ReleaseMode || o.Mode == TestMode {
		o.GinMode = string(o.Mode)
	} else {
		o.GinMode = gin.DebugMode
	}
	o.GinMode = o.getString("ginMode", o.GinMode)

	o.Addr = o.getString("addr", o.Addr)
	o.HTTPAddr = o.getString("httpAddr", o.HTTPAddr)

	if name := o.getString("protocol", ""); name != "" {
		p, err := pmuproto.ParseProtocol(name)
		if err != nil {
			pmulog.Warn("ignoring protocol setting", zap.String("protocol", name), zap.Error(err))
		} else {
			o.Protocol = p
		}
	}

	o.Reader.MaxBuffer = o.getInt("reader.maxBuffer", o.Reader.MaxBuffer)
	o.Reader.StallTimeout = o.getDuration("reader.stallTimeout", o.Reader.StallTimeout)
	o.ConfigCache.Size = o.getInt("configCache.size", o.ConfigCache.Size)
	o.HandlePoolSize = o.getInt("handlePoolSize", o.HandlePoolSize)
	o.TimingWheelTick = o.getDuration("timingWheelTick", o.TimingWheelTick)
	o.TimingWheelSize = o.getInt64("timingWheelSize", o.TimingWheelSize)
	o.Monitor.On = o.getBool("monitor.on", o.Monitor.On)

	o.IniDir = o.getString("iniDir", o.IniDir)
	if o.IniDir != "" && !filepath.IsAbs(o.IniDir) {
		o.IniDir = filepath.Join(o.RootDir, o.IniDir)
	}

	o.configureLog(vp)
}

// ConfigureDataDir resolves and creates the data directory.
func (o *Options) ConfigureDataDir() {
	o.DataDir = o.getString("dataDir", filepath.Join(o.RootDir, "data"))

	if strings.TrimSpace(o.DataDir) != "" {
		err := os.MkdirAll(o.DataDir, 0755)
		if err != nil {
			panic(err)
		}
	}
}

// Check Check
func (o *Options) Check() error {
	if strings.TrimSpace(o.Addr) == "" {
		return errors.New("addr must be set")
	}
	if o.Reader.MaxBuffer < pmuproto.MaxFrameSize {
		return errors.Errorf("reader.maxBuffer %d is smaller than one frame (%d)", o.Reader.MaxBuffer, pmuproto.MaxFrameSize)
	}
	if o.HandlePoolSize <= 0 {
		return errors.New("handlePoolSize must be positive")
	}
	return nil
}

// PidFile holds the process id of a running server.
func (o *Options) PidFile() string {
	return filepath.Join(o.RootDir, "pmugate.pid")
}

// LogOptions LogOptions
func (o *Options) LogOptions() *pmulog.Options {
	lo := pmulog.NewOptions()
	lo.Level = o.Logger.Level
	lo.LogDir = o.Logger.Dir
	lo.LineNum = o.Logger.LineNum
	lo.TraceOn = o.Logger.TraceOn
	return lo
}

func (o *Options) configureLog(vp *viper.Viper) {
	logLevel := vp.GetInt("logger.level")
	if logLevel == 0 {
		if o.Mode == DebugMode {
			logLevel = int(zapcore.DebugLevel)
		} else {
			logLevel = int(zapcore.InfoLevel)
		}
	} else {
		// 1 is debug in the config file
		logLevel = logLevel - 2
	}
	o.Logger.Level = zapcore.Level(logLevel)
	o.Logger.Dir = o.getString("logger.dir", o.Logger.Dir)
	if !filepath.IsAbs(strings.TrimSpace(o.Logger.Dir)) {
		o.Logger.Dir = filepath.Join(o.RootDir, o.Logger.Dir)
	}
	o.Logger.LineNum = o.getBool("logger.lineNum", o.Logger.LineNum)
	o.Logger.TraceOn = o.getBool("logger.traceOn", o.Logger.TraceOn)
}

func (o *Options) ConfigFileUsed() string {
	if o.vp == nil {
		return ""
	}
	return o.vp.ConfigFileUsed()
}

func (o *Options) getString(key string, defaultValue string) string {
	v := o.vp.GetString(key)
	if v == "" {
		return defaultValue
	}
	return v
}

func (o *Options) getInt(key string, defaultValue int) int {
	v := o.vp.GetInt(key)
	if v == 0 {
		return defaultValue
	}
	return v
}

func (o *Options) getInt64(key string, defaultValue int64) int64 {
	v := o.vp.GetInt64(key)
	if v == 0 {
		return defaultValue
	}
	return v
}

func (o *Options) getBool(key string, defaultValue bool) bool {
	objV := o.vp.Get(key)
	if objV == nil {
		return defaultValue
	}
	return cast.ToBool(objV)
}

func (o *Options) getDuration(key string, defaultValue time.Duration) time.Duration {
	v := o.vp.GetDuration(key)
	if v == 0 {
		return defaultValue
	}
	return v
}

type Option func(opts *Options)

func WithMode(mode Mode) Option {
	return func(opts *Options) {
		opts.Mode = mode
	}
}

func WithAddr(addr string) Option {
	return func(opts *Options) {
		opts.Addr = addr
	}
}

func WithHTTPAddr(httpAddr string) Option {
	return func(opts *Options) {
		opts.HTTPAddr = httpAddr
	}
}

func WithRootDir(rootDir string) Option {
	return func(opts *Options) {
		opts.RootDir = rootDir
	}
}

func WithDataDir(dataDir string) Option {
	return func(opts *Options) {
		opts.DataDir = dataDir
	}
}

func WithProtocol(p pmuproto.Protocol) Option {
	return func(opts *Options) {
		opts.Protocol = p
	}
}

func WithIniDir(dir string) Option {
	return func(opts *Options) {
		opts.IniDir = dir
	}
}

func WithStallTimeout(d time.Duration) Option {
	return func(opts *Options) {
		opts.Reader.StallTimeout = d
	}
}

func WithConfigCacheSize(size int) Option {
	return func(opts *Options) {
		opts.ConfigCache.Size = size
	}
}
