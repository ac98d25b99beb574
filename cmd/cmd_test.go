package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gridwatch/pmugate/pkg/pmulog"
	"github.com/gridwatch/pmugate/pkg/pmuproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "pmugate-cmd-logs")
	if err != nil {
		panic(err)
	}
	logOpts := pmulog.NewOptions()
	logOpts.LogDir = dir
	logOpts.NoStdout = true
	pmulog.Configure(logOpts)

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

const deviceFile = `
protocol = "c37118"
idcode = 1000
frame_rate = 30
timebase = 1000000

[[device]]
idcode = 1000
station = "STATION A"

  [[device.phasor]]
  label = "VA"
  type = "voltage"

  [[device.phasor]]
  label = "IA"
  type = "current"

  [device.frequency]
  label = "FREQ"
`

func writeDeviceFile(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "station.toml")
	require.NoError(t, os.WriteFile(path, []byte(deviceFile), 0644))
	return path
}

func captureStream(t *testing.T, withConfig bool) ([]byte, *pmuproto.ConfigurationFrame) {
	c := &composeCMD{iniFile: writeDeviceFile(t)}
	cfgBytes, err := c.compose()
	require.NoError(t, err)
	cfg, err := pmuproto.ParseFrame(cfgBytes)
	require.NoError(t, err)
	config := cfg.(*pmuproto.ConfigurationFrame)

	var stream []byte
	if withConfig {
		stream = append(stream, cfgBytes...)
	}
	for i := 0; i < 3; i++ {
		df := pmuproto.NewDataFrame(config, time.Date(2025, 1, 1, 0, 0, i, 0, time.UTC))
		df.Cells[0].Phasors[0] = pmuproto.PhasorValue{A: 100, B: -100}
		data, err := pmuproto.ComposeFrame(df)
		require.NoError(t, err)
		stream = append(stream, data...)
	}
	return stream, config
}

func TestComposeRetarget(t *testing.T) {
	c := &composeCMD{iniFile: writeDeviceFile(t), protocol: "pdcstream"}
	data, err := c.compose()
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), data[0])

	f, err := pmuproto.ParseFrame(data)
	require.NoError(t, err)
	cfg := f.(*pmuproto.ConfigurationFrame)
	assert.Equal(t, pmuproto.ProtocolBPAPDCStream, cfg.Protocol)
	assert.Equal(t, uint32(1000), cfg.Timebase)
	assert.Equal(t, "STATION A", cfg.Cells[0].StationLabel)

	c.protocol = "nonsense"
	_, err = c.compose()
	assert.Error(t, err)

	c = &composeCMD{iniFile: filepath.Join(t.TempDir(), "missing.toml")}
	_, err = c.compose()
	assert.Error(t, err)
}

func TestDecodeJSON(t *testing.T) {
	stream, _ := captureStream(t, true)
	// garbage in front and a truncated frame at the end
	input := append([]byte{0x01, 0x02, 0x03}, stream...)
	input = append(input, stream[:10]...)

	var out, errOut bytes.Buffer
	d := &decodeCMD{format: "json", chunkSize: 7}
	sum, err := d.decode(bytes.NewReader(input), &out, &errOut)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Frames)
	assert.Equal(t, 3, sum.Faults)
	assert.Equal(t, 10, sum.Trailing)
	assert.Equal(t, 3, strings.Count(errOut.String(), "unknown_protocol"))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	var first, second struct {
		Index  int    `json:"index"`
		Type   string `json:"type"`
		IDCode uint16 `json:"idcode"`
		Values []struct {
			Phasors []struct {
				Real float64 `json:"real"`
				Imag float64 `json:"imag"`
			} `json:"phasors"`
		} `json:"values"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "CFG2", first.Type)
	assert.Empty(t, first.Values)
	assert.Equal(t, 1, second.Index)
	assert.Equal(t, "DATA", second.Type)
	require.Len(t, second.Values, 1)
	assert.InDelta(t, 100*9.15527, second.Values[0].Phasors[0].Real, 1e-6)
	assert.InDelta(t, -100*9.15527, second.Values[0].Phasors[0].Imag, 1e-6)
}

func TestDecodeWithDeviceFile(t *testing.T) {
	stream, _ := captureStream(t, false)

	var out, errOut bytes.Buffer
	d := &decodeCMD{format: "json"}
	sum, err := d.decode(bytes.NewReader(stream), &out, &errOut)
	require.NoError(t, err)
	assert.Zero(t, sum.Frames)
	assert.Equal(t, 3, sum.Faults)
	assert.Contains(t, errOut.String(), "no_configuration")

	out.Reset()
	errOut.Reset()
	d.iniFiles = []string{writeDeviceFile(t)}
	sum, err = d.decode(bytes.NewReader(stream), &out, &errOut)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Frames)
	assert.Zero(t, sum.Faults)
}

func TestDecodeYAML(t *testing.T) {
	stream, _ := captureStream(t, true)

	var out, errOut bytes.Buffer
	d := &decodeCMD{format: "yaml"}
	sum, err := d.decode(bytes.NewReader(stream), &out, &errOut)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Frames)

	dec := yaml.NewDecoder(&out)
	var types []string
	for {
		var rec struct {
			Type   string `yaml:"type"`
			IDCode uint16 `yaml:"idcode"`
		}
		if err := dec.Decode(&rec); err != nil {
			break
		}
		assert.Equal(t, uint16(1000), rec.IDCode)
		types = append(types, rec.Type)
	}
	assert.Equal(t, []string{"CFG2", "DATA", "DATA", "DATA"}, types)
}

func TestDecodeUnknownFormat(t *testing.T) {
	d := &decodeCMD{format: "xml"}
	_, err := d.decode(bytes.NewReader(nil), &bytes.Buffer{}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestReadPid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pmugate.pid")

	_, err := readPid(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("4242\n"), 0644))
	pid, err := readPid(path)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)

	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	_, err = readPid(path)
	assert.Error(t, err)
}
