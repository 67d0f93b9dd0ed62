// Package soapy drives a SoapySDR transmit device, HackRF by default.
package soapy

// #cgo CFLAGS: -g -Wall
// #cgo LDFLAGS: -lSoapySDR
import (
	"fmt"
	"sync"

	"github.com/pothosware/go-soapy-sdr/pkg/device"
	"github.com/pothosware/go-soapy-sdr/pkg/modules"
	"github.com/pothosware/go-soapy-sdr/pkg/sdrlogger"
	"github.com/pothosware/go-soapy-sdr/pkg/version"

	"github.com/dougsko/pagerd/pkg/hardware"
	"github.com/dougsko/pagerd/pkg/logging"
)

// Gain element names on the HackRF TX path
const (
	GainVGA = "VGA"
	GainAMP = "AMP"
)

// write timeout per sub-chunk in microseconds
const writeTimeoutUs = 1000000

// Config selects and sets up the device
type Config struct {
	Driver     string
	Args       map[string]string
	Channel    uint
	SampleRate int
}

// Sink implements hardware.SampleSink on a SoapySDR device
type Sink struct {
	config Config
	mutex  sync.Mutex

	device *device.SDRDevice
	stream *device.SDRStreamCF32
	buffer [][]complex64
	flags  []int
}

// Open creates the device. A missing or busy device is reported as
// hardware.ErrDeviceUnavailable.
func Open(config Config) (*Sink, error) {
	initSoapySDR()

	args := map[string]string{}
	for k, v := range config.Args {
		args[k] = v
	}
	args["driver"] = config.Driver

	dev, err := device.Make(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", hardware.ErrDeviceUnavailable, config.Driver, err)
	}

	s := &Sink{
		config: config,
		device: dev,
		buffer: make([][]complex64, 1),
		flags:  make([]int, 1),
	}

	if err := dev.SetSampleRate(device.DirectionTX, config.Channel, float64(config.SampleRate)); err != nil {
		dev.Unmake()
		return nil, fmt.Errorf("%w: could not set sample rate: %v", hardware.ErrDeviceUnavailable, err)
	}

	if s.stream, err = dev.SetupSDRStreamCF32(device.DirectionTX, []uint{config.Channel}, nil); err != nil {
		dev.Unmake()
		return nil, fmt.Errorf("%w: could not setup TX stream: %v", hardware.ErrDeviceUnavailable, err)
	}

	logging.Infof("soapy", "Opened %s TX at %d S/s", config.Driver, config.SampleRate)
	return s, nil
}

// NewOpener returns a hardware.Opener that opens a fresh device for every
// session
func NewOpener(config Config, basebandRate int) hardware.Opener {
	return func() (hardware.Transmitter, error) {
		sink, err := Open(config)
		if err != nil {
			return nil, err
		}
		return hardware.NewSDRTransmitter(sink, basebandRate), nil
	}
}

// Tune sets frequency, bandwidth and gain elements
func (s *Sink) Tune(p hardware.TxParams) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ch := s.config.Channel
	hz := float64(p.Frequency.Hertz())

	logging.Debugf("soapy", "Setting frequency to %s", p.Frequency)
	if err := s.device.SetFrequency(device.DirectionTX, ch, hz, nil); err != nil {
		return fmt.Errorf("could not set frequency: %w", err)
	}

	// Analog filter wide enough for the FM deviation on both sides
	bw := 2 * p.DeviationKHz * 1000
	if err := s.device.SetBandwidth(device.DirectionTX, ch, bw); err != nil {
		logging.Warnf("soapy", "Could not set bandwidth %.0f Hz, using driver default: %v", bw, err)
	}

	amp := 0.0
	if p.Amplifier {
		amp = hardware.AmpGainDB
	}
	if err := s.device.SetGainElement(device.DirectionTX, ch, GainAMP, amp); err != nil {
		return fmt.Errorf("could not set %s gain: %w", GainAMP, err)
	}
	if err := s.device.SetGainElement(device.DirectionTX, ch, GainVGA, float64(p.GainRF)); err != nil {
		return fmt.Errorf("could not set %s gain: %w", GainVGA, err)
	}

	return nil
}

// SampleRate returns the configured TX sample rate
func (s *Sink) SampleRate() int {
	return s.config.SampleRate
}

// Activate turns the TX stream on
func (s *Sink) Activate() error {
	logging.Debug("soapy", "Activating TX stream")
	return s.stream.Activate(0, 0, 0)
}

// Deactivate turns the TX stream off
func (s *Sink) Deactivate() error {
	logging.Debug("soapy", "Deactivating TX stream")
	return s.stream.Deactivate(0, 0)
}

// Write blocks until the whole block has been accepted by the device
func (s *Sink) Write(iq []complex64) error {
	for len(iq) > 0 {
		s.buffer[0] = iq
		n, err := s.stream.Write(s.buffer, uint(len(iq)), s.flags, 0, writeTimeoutUs)
		if err != nil {
			return fmt.Errorf("stream write: %w", err)
		}
		if int(n) == 0 {
			return fmt.Errorf("stream write: device accepted no samples")
		}
		iq = iq[int(n):]
	}
	return nil
}

// Close releases the stream and the device
func (s *Sink) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.stream != nil {
		if err := s.stream.Close(); err != nil {
			logging.Warnf("soapy", "Could not close TX stream: %v", err)
		}
		s.stream = nil
	}
	if s.device != nil {
		err := s.device.Unmake()
		s.device = nil
		if err != nil {
			return fmt.Errorf("could not release device: %w", err)
		}
	}
	return nil
}

var initOnce sync.Once

func initSoapySDR() {
	initOnce.Do(func() {
		logging.Debugf("soapy", "Using SoapySDR versions: ABI: %s API: %s Lib: %s",
			version.GetABIVersion(), version.GetAPIVersion(), version.GetLibVersion())
		sdrlogger.SetLogLevel(sdrlogger.Error)
	})
}

// LogDevices lists SoapySDR modules and every TX capable device
func LogDevices() {
	logging.Infof("soapy", "Using SoapySDR versions: ABI: %s API: %s Lib: %s",
		version.GetABIVersion(), version.GetAPIVersion(), version.GetLibVersion())
	logging.Infof("soapy", "SoapySDR modules root path: %v", modules.GetRootPath())

	modulesFound := modules.ListModules()
	if len(modulesFound) == 0 {
		logging.Info("soapy", "No SoapySDR modules found")
	}
	for _, module := range modulesFound {
		moduleVersion := modules.GetModuleVersion(module)
		if len(moduleVersion) == 0 {
			moduleVersion = "[None]"
		}
		logging.Infof("soapy", "Found SoapySDR module: %v, version: %v", module, moduleVersion)
	}

	sdrlogger.SetLogLevel(sdrlogger.Error)

	devices := device.Enumerate(nil)
	logging.Infof("soapy", "Found %d devices", len(devices))
	for _, found := range devices {
		args := map[string]string{"driver": found["driver"]}
		if serial, ok := found["serial"]; ok {
			args["serial"] = serial
		}

		dev, err := device.Make(args)
		if err != nil {
			logging.Warnf("soapy", "Could not open %s: %v", args["driver"], err)
			continue
		}
		logging.Infof("soapy", "Driver: %s", args["driver"])
		logTxSettings(dev)
		if err := dev.Unmake(); err != nil {
			logging.Warnf("soapy", "Could not release %s: %v", args["driver"], err)
		}
	}
}

func logTxSettings(dev *device.SDRDevice) {
	numChannels := dev.GetNumChannels(device.DirectionTX)
	if numChannels == 0 {
		logging.Info("soapy", "\tNo TX channels")
		return
	}
	for channel := uint(0); channel < numChannels; channel++ {
		logging.Infof("soapy", "TX channel %d:", channel)
		for _, sampleRateRange := range dev.GetSampleRateRange(device.DirectionTX, channel) {
			logging.Infof("soapy", "\tSample rates: %v", sampleRateRange.ToString())
		}
		logging.Infof("soapy", "\tGain elements: %v", dev.ListGains(device.DirectionTX, channel))
		logging.Infof("soapy", "\tIQ sample types: %v", dev.GetStreamFormats(device.DirectionTX, channel))
	}
}
