package rpysight

import (
	"fmt"

	"github.com/spf13/viper"
)

// InputChannels assigns a hardware channel number (possibly negative,
// meaning "disabled") to each recognized DataType. It is the config-file
// shaped counterpart of Inputs.
type InputChannels struct {
	Pmt1    int32 `mapstructure:"pmt1_channel"`
	Pmt2    int32 `mapstructure:"pmt2_channel"`
	Pmt3    int32 `mapstructure:"pmt3_channel"`
	Pmt4    int32 `mapstructure:"pmt4_channel"`
	Line    int32 `mapstructure:"line_channel"`
	Frame   int32 `mapstructure:"frame_channel"`
	TagLens int32 `mapstructure:"taglens_channel"`
	Laser   int32 `mapstructure:"laser_channel"`
}

// Build turns the configured channel assignments into an Inputs table.
// Channels left at zero value are still wired (0 is a legitimate
// channel number); only explicitly negative channels are disabled.
func (ic InputChannels) Build() Inputs {
	m := make(map[int32]DataType, 8)
	assign := func(ch int32, dt DataType) {
		if ch < 0 {
			return
		}
		m[ch] = dt
	}
	assign(ic.Pmt1, Pmt1)
	assign(ic.Pmt2, Pmt2)
	assign(ic.Pmt3, Pmt3)
	assign(ic.Pmt4, Pmt4)
	assign(ic.Line, Line)
	assign(ic.Frame, Frame)
	assign(ic.TagLens, TagLens)
	assign(ic.Laser, Laser)
	return NewInputs(m)
}

// AppConfig is the immutable acquisition descriptor. It is frozen at
// startup: once loaded and validated, nothing in the pipeline mutates
// it. Snake and Inputs are both derived from an AppConfig.
type AppConfig struct {
	Rows   int `mapstructure:"rows"`
	Columns int `mapstructure:"columns"`
	// Planes is 0 or 1 for a 2D acquisition, >= 2 for 3D.
	Planes int `mapstructure:"planes"`

	ScanPeriod  Picosecond `mapstructure:"scan_period"`
	LaserPeriod Picosecond `mapstructure:"laser_period"`
	TagPeriod   Picosecond `mapstructure:"tag_period"`

	Bidir        BidirMode `mapstructure:"-"`
	BidirString  string    `mapstructure:"bidir"`
	FillFraction float64   `mapstructure:"fill_fraction"`

	FrameDeadTime Picosecond `mapstructure:"frame_dead_time"`
	LineShift     Picosecond `mapstructure:"line_shift"`

	Inputs InputChannels `mapstructure:"inputs"`

	RollingAvg        int     `mapstructure:"rolling_avg"`
	IncrementColorBy  float32 `mapstructure:"increment_color_by"`
	Filename          string  `mapstructure:"filename"`
}

// Is3D reports whether the configuration describes a volumetric (TAG
// lens modulated) acquisition.
func (c AppConfig) Is3D() bool {
	return c.Planes >= 2
}

// Validate checks the invariants spec.md requires of an AppConfig:
// positive rows/columns, a fill fraction in (0,100], and a bidir string
// that resolves to a known mode. It is called once at startup; any
// error here is fatal and the acquisition thread never starts.
func (c *AppConfig) Validate() error {
	if c.Rows <= 0 {
		return fmt.Errorf("rpysight: rows must be positive, got %d", c.Rows)
	}
	if c.Columns <= 0 {
		return fmt.Errorf("rpysight: columns must be positive, got %d", c.Columns)
	}
	if c.Planes < 0 {
		return fmt.Errorf("rpysight: planes must be >= 0, got %d", c.Planes)
	}
	if c.ScanPeriod <= 0 {
		return fmt.Errorf("rpysight: scan_period must be positive, got %d", c.ScanPeriod)
	}
	if c.FillFraction <= 0 || c.FillFraction > 100 {
		return fmt.Errorf("rpysight: fill_fraction must be in (0,100], got %v", c.FillFraction)
	}
	if c.RollingAvg <= 0 {
		return fmt.Errorf("rpysight: rolling_avg must be positive, got %d", c.RollingAvg)
	}
	if c.IncrementColorBy <= 0 {
		return fmt.Errorf("rpysight: increment_color_by must be positive, got %v", c.IncrementColorBy)
	}
	switch c.BidirString {
	case "", "Unidir", "unidir":
		c.Bidir = Unidir
	case "Bidir", "bidir":
		c.Bidir = Bidir
	default:
		return fmt.Errorf("rpysight: bidir must be one of Unidir/Bidir, got %q", c.BidirString)
	}
	if c.Is3D() && c.TagPeriod <= 0 {
		return fmt.Errorf("rpysight: tag_period must be positive for a 3D (planes>=2) acquisition")
	}
	return nil
}

// LoadAppConfig reads and validates an AppConfig from the file at path
// using viper, exactly as the teacher loads its per-source config
// blocks with viper.UnmarshalKey. Any failure here -- missing file,
// malformed contents, or a failed Validate -- is a configuration error
// and is fatal before acquisition starts.
func LoadAppConfig(path string) (AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return AppConfig{}, fmt.Errorf("rpysight: reading config %s: %w", path, err)
	}
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("rpysight: parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// FrameSpan returns the total active duration of one frame, in
// picoseconds, before the dead time is added: rows*scan_period for a
// unidirectional scan, or half that for a bidirectional scan (since a
// bidirectional row pair sweeps the same field of view in the time a
// unidirectional pair would take for a single row each way).
func (c AppConfig) FrameSpan() Picosecond {
	span := Picosecond(c.Rows) * c.ScanPeriod
	if c.Bidir == Bidir {
		span /= 2
	}
	return span
}

// FullFrameWindow returns FrameSpan() + FrameDeadTime, the span beyond
// which an incoming photon timestamp signals PhotonNewFrame.
func (c AppConfig) FullFrameWindow() Picosecond {
	return c.FrameSpan() + c.FrameDeadTime
}
