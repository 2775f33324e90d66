// Command mppdecdemo wires a Decoder against a pair of synthetic,
// pass-through parser/hardware collaborators and feeds it a run of
// generated packets, printing frame stats as they arrive. The
// bitstream and hardware register layers are out of scope for this
// module (see pipeline.parser.Collaborator, pipeline.hal.Collaborator);
// this binary exists to exercise the scheduler end to end, not to
// decode anything real.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/Damenly/mpp/frame"
	"github.com/Damenly/mpp/logger"
	"github.com/Damenly/mpp/packet"
	"github.com/Damenly/mpp/pipeline"
)

// fileConfig is the on-disk shape read via --config. Every field
// mirrors pipeline.Config; zero values fall back to pipeline.Config's
// own defaults.
type fileConfig struct {
	Coding             string `yaml:"coding"`
	NeedSplit          bool   `yaml:"need_split"`
	FastMode           bool   `yaml:"fast_mode"`
	InternalPTS        bool   `yaml:"internal_pts"`
	PacketSlotCount    int    `yaml:"packet_slots"`
	FrameSlotCount     int    `yaml:"frame_slots"`
	DisplayQueueLimit  int    `yaml:"display_queue_limit"`
	UsePresetTimeOrder bool   `yaml:"preset_time_order"`
	DisableError       bool   `yaml:"disable_error"`
	EnableDeinterlace  bool   `yaml:"enable_deinterlace"`
}

func (fc fileConfig) toPipelineConfig() pipeline.Config {
	return pipeline.Config{
		Coding:             pipeline.Coding(fc.Coding),
		NeedSplit:          fc.NeedSplit,
		FastMode:           fc.FastMode,
		InternalPTS:        fc.InternalPTS,
		PacketSlotCount:    fc.PacketSlotCount,
		FrameSlotCount:     fc.FrameSlotCount,
		DisplayQueueLimit:  fc.DisplayQueueLimit,
		UsePresetTimeOrder: fc.UsePresetTimeOrder,
		DisableError:       fc.DisableError,
		EnableDeinterlace:  fc.EnableDeinterlace,
	}
}

func loadConfig(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fc, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return fc, nil
}

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [flags]\n", os.Args[0])
		pflag.PrintDefaults()
	}

	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	configPath := pflag.String("config", "", "path to a YAML decoder configuration file")
	coding := pflag.String("coding", "h264", "bitstream coding (h264, h265, vp9, mjpeg)")
	fastMode := pflag.Bool("fast-mode", false, "enable a third task handle for pipelined submission")
	packetCount := pflag.Int("packets", 8, "number of synthetic packets to feed")
	packetSize := pflag.Int("packet-size", 1024, "size in bytes of each synthetic packet")
	width := pflag.Int("width", 1920, "synthetic frame width")
	height := pflag.Int("height", 1080, "synthetic frame height")
	pflag.Parse()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.SetDefault(func() logger.Logger { return l })
	defer belt.Flush(ctx)

	fc, err := loadConfig(*configPath)
	if err != nil {
		l.Fatal(err)
	}
	cfg := fc.toPipelineConfig()
	if cfg.Coding == "" {
		cfg.Coding = pipeline.Coding(*coding)
	}
	if *fastMode {
		cfg.FastMode = true
	}

	p := newDemoParser(*width, *height)
	h := newDemoHal()

	d, err := pipeline.New(ctx, cfg, p, h, nil)
	if err != nil {
		l.Fatal(err)
	}
	defer func() {
		if err := d.Deinit(ctx); err != nil {
			l.Errorf("deinit: %v", err)
		}
	}()

	go func() {
		for i := 0; i < *packetCount; i++ {
			pkt := packet.Pool.Get(ctx)
			pkt.Data = make([]byte, *packetSize)
			pkt.PTS = int64(i) * 33333
			pkt.DTS = pkt.PTS
			pkt.Size = len(pkt.Data)
			pkt.EOS = i == *packetCount-1
			d.InputPackets() <- pkt
		}
	}()

	seen := 0
	deadline := time.After(30 * time.Second)
	for {
		select {
		case f := <-d.OutputFrames():
			seen++
			printFrame(seen, f)
			if f.EOS {
				l.Infof("end of stream reached after %d frame(s)", seen)
				return
			}
		case <-deadline:
			l.Warnf("timed out after %d frame(s), expected an eos frame", seen)
			return
		}
	}
}

func printFrame(n int, f *frame.Frame) {
	fmt.Printf("frame %3d: %s\n", n, f)
}
