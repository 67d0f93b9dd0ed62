package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v2"

	"github.com/dougsko/pagerd/pkg/fields"
	"github.com/dougsko/pagerd/pkg/options"
)

// EnvPrefix is the prefix of environment overrides, e.g. PAGERD_WEB_PORT
const EnvPrefix = "PAGERD_"

// Config represents the pagerd configuration
type Config struct {
	Radio struct {
		// SoapySDR device selection
		Driver  string            `yaml:"driver"`
		Args    map[string]string `yaml:"args"`
		Channel int               `yaml:"channel"`

		// Streaming
		SampleRate    int `yaml:"sample_rate"`
		SubChunkSize  int `yaml:"sub_chunk_size"`
		StopTimeoutMs int `yaml:"stop_timeout_ms"`

		// Mock transmitter instead of hardware
		Mock bool `yaml:"mock"`
	} `yaml:"radio"`

	POCSAG struct {
		Amplitude      int    `yaml:"amplitude"`
		BasebandRate   int    `yaml:"baseband_rate"`
		PollIntervalMs int    `yaml:"poll_interval_ms"`
		DateFormat     string `yaml:"date_format"`
	} `yaml:"pocsag"`

	Defaults struct {
		Frequency string `yaml:"frequency"`
		Capcode   string `yaml:"capcode"`
		Message   string `yaml:"message"`

		// Selector indices
		Type      int  `yaml:"type"`
		Bitrate   int  `yaml:"bitrate"`
		Charset   int  `yaml:"charset"`
		Function  int  `yaml:"function"`
		DateTime  int  `yaml:"datetime"`
		Gain      int  `yaml:"gain"`
		Bandwidth int  `yaml:"bandwidth"`
		Amplifier bool `yaml:"amplifier"`
	} `yaml:"defaults"`

	Calibration struct {
		GainLevels    []int     `yaml:"gain_levels"`
		BandwidthsKHz []float64 `yaml:"bandwidths_khz"`
	} `yaml:"calibration"`

	Web struct {
		Port        int    `yaml:"port"`
		BindAddress string `yaml:"bind_address"`
	} `yaml:"web"`

	API struct {
		UnixSocket string `yaml:"unix_socket"`
	} `yaml:"api"`

	Storage struct {
		DatabasePath string `yaml:"database_path"`
		MaxRecords   int    `yaml:"max_records"`
	} `yaml:"storage"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		Console    bool   `yaml:"console"`
		Structured bool   `yaml:"structured"`
		MaxSize    int    `yaml:"max_size"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logging"`

	Monitor struct {
		Enabled bool `yaml:"enabled"`
		FFTSize int  `yaml:"fft_size"`
	} `yaml:"monitor"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	var config Config

	config.Radio.Driver = "hackrf"
	config.Radio.Args = map[string]string{}
	config.Radio.SampleRate = 2400000
	config.Radio.SubChunkSize = 4096
	config.Radio.StopTimeoutMs = 5000

	config.POCSAG.Amplitude = 8000
	config.POCSAG.BasebandRate = 48000
	config.POCSAG.PollIntervalMs = 250
	config.POCSAG.DateFormat = "15:04 02.01.06"

	sel := options.DefaultSelection()
	config.Defaults.Frequency = "144.5000"
	config.Defaults.Capcode = "0000000"
	config.Defaults.Type = sel.Type
	config.Defaults.Bitrate = sel.Bitrate
	config.Defaults.Charset = sel.Charset
	config.Defaults.Function = sel.Function
	config.Defaults.DateTime = sel.DateTime
	config.Defaults.Gain = sel.Gain
	config.Defaults.Bandwidth = sel.Bandwidth
	config.Defaults.Amplifier = sel.Amplifier

	config.Calibration.GainLevels = append([]int(nil), options.DefaultGainLevels...)
	config.Calibration.BandwidthsKHz = append([]float64(nil), options.DefaultBandwidthsKHz...)

	config.Web.Port = 8080
	config.Web.BindAddress = "0.0.0.0"

	config.API.UnixSocket = "/tmp/pagerd.sock"

	config.Storage.DatabasePath = "./pagerd.db"
	config.Storage.MaxRecords = 10000

	config.Logging.Level = "info"
	config.Logging.Console = true
	config.Logging.MaxSize = 10
	config.Logging.MaxBackups = 3
	config.Logging.MaxAge = 28

	config.Monitor.Enabled = true
	config.Monitor.FFTSize = 1024

	return &config
}

// LoadConfig loads configuration from a YAML file. Keys missing from the
// file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Zero values that make no sense fall back to defaults
	def := Default()
	if config.Radio.Driver == "" {
		config.Radio.Driver = def.Radio.Driver
	}
	if config.Radio.Args == nil {
		config.Radio.Args = map[string]string{}
	}
	if config.POCSAG.DateFormat == "" {
		config.POCSAG.DateFormat = def.POCSAG.DateFormat
	}
	if len(config.Calibration.GainLevels) == 0 {
		config.Calibration.GainLevels = def.Calibration.GainLevels
	}
	if len(config.Calibration.BandwidthsKHz) == 0 {
		config.Calibration.BandwidthsKHz = def.Calibration.BandwidthsKHz
	}
	if config.Web.Port == 0 {
		config.Web.Port = def.Web.Port
	}
	if config.Storage.MaxRecords == 0 {
		config.Storage.MaxRecords = def.Storage.MaxRecords
	}

	return config, nil
}

// Selection returns the startup selector indices
func (c *Config) Selection() options.Selection {
	return options.Selection{
		Type:      c.Defaults.Type,
		Bitrate:   c.Defaults.Bitrate,
		Charset:   c.Defaults.Charset,
		Function:  c.Defaults.Function,
		DateTime:  c.Defaults.DateTime,
		Gain:      c.Defaults.Gain,
		Bandwidth: c.Defaults.Bandwidth,
		Amplifier: c.Defaults.Amplifier,
	}
}

// Mapper builds the option mapper from the calibration tables
func (c *Config) Mapper() (*options.Mapper, error) {
	return options.NewMapper(c.Calibration.GainLevels, c.Calibration.BandwidthsKHz)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !c.Radio.Mock && c.Radio.Driver == "" {
		return fmt.Errorf("radio driver is required unless radio.mock is set")
	}
	if c.Radio.SampleRate <= 0 {
		return fmt.Errorf("radio sample rate must be positive")
	}
	if c.Radio.SubChunkSize <= 0 {
		return fmt.Errorf("radio sub chunk size must be positive")
	}
	if c.Radio.StopTimeoutMs <= 0 {
		return fmt.Errorf("radio stop timeout must be positive")
	}
	if c.POCSAG.Amplitude <= 0 || c.POCSAG.Amplitude > 32767 {
		return fmt.Errorf("pocsag amplitude %d out of range", c.POCSAG.Amplitude)
	}
	if c.POCSAG.BasebandRate < 2400 {
		return fmt.Errorf("pocsag baseband rate %d below 2400", c.POCSAG.BasebandRate)
	}
	if c.Radio.SampleRate%c.POCSAG.BasebandRate != 0 {
		return fmt.Errorf("radio sample rate %d is not a multiple of baseband rate %d",
			c.Radio.SampleRate, c.POCSAG.BasebandRate)
	}
	if c.POCSAG.PollIntervalMs <= 0 {
		return fmt.Errorf("pocsag poll interval must be positive")
	}

	mapper, err := c.Mapper()
	if err != nil {
		return fmt.Errorf("invalid calibration: %w", err)
	}
	if err := mapper.Validate(c.Selection()); err != nil {
		return fmt.Errorf("invalid default selection: %w", err)
	}

	if shown := fields.NewFrequency(c.Defaults.Frequency).Text(); shown != c.Defaults.Frequency {
		return fmt.Errorf("default frequency %q is not a valid frequency", c.Defaults.Frequency)
	}
	if shown := fields.NewCapcode(c.Defaults.Capcode).Text(); shown != c.Defaults.Capcode {
		return fmt.Errorf("default capcode %q is not a valid capcode", c.Defaults.Capcode)
	}

	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web port %d out of range", c.Web.Port)
	}
	if c.Monitor.Enabled && (c.Monitor.FFTSize <= 0 || c.Monitor.FFTSize&(c.Monitor.FFTSize-1) != 0) {
		return fmt.Errorf("monitor fft size %d must be a power of two", c.Monitor.FFTSize)
	}

	return nil
}

// envKey turns PAGERD_RADIO_SAMPLE_RATE into radio.sample_rate
func envKey(k, v string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(k, EnvPrefix))
	return strings.Replace(key, "_", ".", 1), v
}

// ApplyEnv overlays PAGERD_* environment variables on top of the loaded
// configuration and returns the keys that were applied
func ApplyEnv(c *Config) ([]string, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider(".", env.Opt{Prefix: EnvPrefix, TransformFunc: envKey}), nil); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	strs := map[string]*string{
		"radio.driver":          &c.Radio.Driver,
		"pocsag.date_format":    &c.POCSAG.DateFormat,
		"defaults.frequency":    &c.Defaults.Frequency,
		"defaults.capcode":      &c.Defaults.Capcode,
		"defaults.message":      &c.Defaults.Message,
		"web.bind_address":      &c.Web.BindAddress,
		"api.unix_socket":       &c.API.UnixSocket,
		"storage.database_path": &c.Storage.DatabasePath,
		"logging.level":         &c.Logging.Level,
		"logging.file":          &c.Logging.File,
	}
	ints := map[string]*int{
		"radio.channel":           &c.Radio.Channel,
		"radio.sample_rate":       &c.Radio.SampleRate,
		"radio.sub_chunk_size":    &c.Radio.SubChunkSize,
		"radio.stop_timeout_ms":   &c.Radio.StopTimeoutMs,
		"pocsag.amplitude":        &c.POCSAG.Amplitude,
		"pocsag.baseband_rate":    &c.POCSAG.BasebandRate,
		"pocsag.poll_interval_ms": &c.POCSAG.PollIntervalMs,
		"defaults.type":           &c.Defaults.Type,
		"defaults.bitrate":        &c.Defaults.Bitrate,
		"defaults.charset":        &c.Defaults.Charset,
		"defaults.function":       &c.Defaults.Function,
		"defaults.datetime":       &c.Defaults.DateTime,
		"defaults.gain":           &c.Defaults.Gain,
		"defaults.bandwidth":      &c.Defaults.Bandwidth,
		"web.port":                &c.Web.Port,
		"storage.max_records":     &c.Storage.MaxRecords,
		"monitor.fft_size":        &c.Monitor.FFTSize,
	}
	bools := map[string]*bool{
		"radio.mock":         &c.Radio.Mock,
		"defaults.amplifier": &c.Defaults.Amplifier,
		"logging.console":    &c.Logging.Console,
		"logging.structured": &c.Logging.Structured,
		"monitor.enabled":    &c.Monitor.Enabled,
	}

	var applied []string
	for key, dst := range strs {
		if k.Exists(key) {
			*dst = k.String(key)
			applied = append(applied, key)
		}
	}
	for key, dst := range ints {
		if k.Exists(key) {
			*dst = k.Int(key)
			applied = append(applied, key)
		}
	}
	for key, dst := range bools {
		if k.Exists(key) {
			*dst = k.Bool(key)
			applied = append(applied, key)
		}
	}

	return applied, nil
}
