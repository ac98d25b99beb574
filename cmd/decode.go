package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/gridwatch/pmugate/pkg/pmuini"
	"github.com/gridwatch/pmugate/pkg/pmuproto"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type decodeCMD struct {
	ctx       *PmuContext
	format    string
	protocol  string
	iniFiles  []string
	chunkSize int
}

func newDecodeCMD(ctx *PmuContext) *decodeCMD {
	return &decodeCMD{ctx: ctx}
}

func (d *decodeCMD) CMD() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <capture|->",
		Short: "decode a captured byte stream and print its frames",
		Args:  cobra.ExactArgs(1),
		RunE:  d.run,
	}
	cmd.Flags().StringVarP(&d.format, "format", "f", "json", "output format: json or yaml")
	cmd.Flags().StringVarP(&d.protocol, "protocol", "p", "", "only accept frames of this protocol")
	cmd.Flags().StringSliceVar(&d.iniFiles, "ini", nil, "device files providing configurations missing from the capture")
	cmd.Flags().IntVar(&d.chunkSize, "chunk", 4096, "read size used to feed the stream reader")
	return cmd
}

func (d *decodeCMD) run(cmd *cobra.Command, args []string) error {
	d.ctx.configureLog(true)

	in := io.Reader(os.Stdin)
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	sum, err := d.decode(in, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d frames, %d faults, %d trailing bytes\n", sum.Frames, sum.Faults, sum.Trailing)
	return nil
}

type decodeSummary struct {
	Frames   int
	Faults   int
	Trailing int
}

// decodedFrame one record of the decode output.
type decodedFrame struct {
	Index    int                `json:"index" yaml:"index"`
	Type     pmuproto.FrameType `json:"type" yaml:"type"`
	Protocol pmuproto.Protocol  `json:"protocol" yaml:"protocol"`
	IDCode   uint16             `json:"idcode" yaml:"idcode"`
	Frame    pmuproto.Frame     `json:"frame" yaml:"frame"`
	Values   []cellValues       `json:"values,omitempty" yaml:"values,omitempty"`
}

// cellValues data cell samples in engineering units.
type cellValues struct {
	IDCode    uint16         `json:"idcode" yaml:"idcode"`
	Phasors   []phasorValues `json:"phasors,omitempty" yaml:"phasors,omitempty"`
	Frequency float64        `json:"frequency" yaml:"frequency"`
	Analogs   []float64      `json:"analogs,omitempty" yaml:"analogs,omitempty"`
}

type phasorValues struct {
	Real float64 `json:"real" yaml:"real"`
	Imag float64 `json:"imag" yaml:"imag"`
}

func scaledValues(f *pmuproto.DataFrame) []cellValues {
	values := make([]cellValues, 0, len(f.Cells))
	for n, c := range f.Cells {
		cv := cellValues{IDCode: c.IDCode, Frequency: f.Frequency(n)}
		for i := range c.Phasors {
			p := f.Phasor(n, i)
			cv.Phasors = append(cv.Phasors, phasorValues{Real: real(p), Imag: imag(p)})
		}
		for i := range c.Analogs {
			cv.Analogs = append(cv.Analogs, f.Analog(n, i))
		}
		values = append(values, cv)
	}
	return values
}

func (d *decodeCMD) newCodec() (*pmuproto.Codec, error) {
	protocol, err := pmuproto.ParseProtocol(d.protocol)
	if err != nil {
		return nil, err
	}
	store := pmuproto.NewMemoryStore(0)
	for _, path := range d.iniFiles {
		cfg, err := pmuini.Load(path)
		if err != nil {
			return nil, errors.Wrapf(err, "load %s", path)
		}
		if err := store.StoreConfiguration(cfg); err != nil {
			return nil, err
		}
	}
	return pmuproto.New(pmuproto.WithProtocol(protocol), pmuproto.WithStore(store)), nil
}

func (d *decodeCMD) decode(in io.Reader, out, errOut io.Writer) (decodeSummary, error) {
	var sum decodeSummary
	write, err := newRecordWriter(d.format, out)
	if err != nil {
		return sum, err
	}
	codec, err := d.newCodec()
	if err != nil {
		return sum, err
	}
	reader := codec.NewReader()
	defer reader.Release()

	faultColor := color.New(color.FgRed)
	chunk := d.chunkSize
	if chunk <= 0 {
		chunk = 4096
	}
	buf := make([]byte, chunk)
	var writeErr error
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			_, _ = reader.Write(buf[:n])
			reader.Frames(func(frame pmuproto.Frame, err error) bool {
				if err != nil {
					sum.Faults++
					faultColor.Fprintf(errOut, "fault %s: %v\n", pmuproto.KindName(err), err)
					return true
				}
				rec := decodedFrame{
					Index:    sum.Frames,
					Type:     frame.GetFrameType(),
					Protocol: frame.GetProtocol(),
					IDCode:   frame.GetIDCode(),
					Frame:    frame,
				}
				if df, ok := frame.(*pmuproto.DataFrame); ok {
					rec.Values = scaledValues(df)
				}
				sum.Frames++
				if writeErr = write(rec); writeErr != nil {
					return false
				}
				return true
			})
			if writeErr != nil {
				return sum, writeErr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return sum, rerr
		}
	}
	sum.Trailing = reader.Buffered()
	return sum, nil
}

func newRecordWriter(format string, out io.Writer) (func(decodedFrame) error, error) {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		return func(rec decodedFrame) error { return enc.Encode(rec) }, nil
	case "yaml", "yml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		return func(rec decodedFrame) error { return enc.Encode(rec) }, nil
	}
	return nil, errors.Errorf("unknown output format %q", format)
}
