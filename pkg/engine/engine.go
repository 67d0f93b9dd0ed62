// Package engine runs the pager session controller and exposes it on the
// control socket.
package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/dougsko/pagerd/pkg/config"
	"github.com/dougsko/pagerd/pkg/hardware"
	"github.com/dougsko/pagerd/pkg/logging"
	"github.com/dougsko/pagerd/pkg/monitor"
	"github.com/dougsko/pagerd/pkg/protocol"
	"github.com/dougsko/pagerd/pkg/session"
	"github.com/dougsko/pagerd/pkg/storage"
)

// Version is reported by STATUS and the web API
const Version = "0.1.0-dev"

// commandTimeout bounds how long a socket or web request waits for the
// controller
const commandTimeout = 10 * time.Second

// defaultHistoryLimit applies when HISTORY has no limit
const defaultHistoryLimit = 20

// ErrNotRunning is returned by operations that need a started engine
var ErrNotRunning = errors.New("engine not running")

// RadioInfo describes the transmit path
type RadioInfo struct {
	Driver       string `json:"driver"`
	Mock         bool   `json:"mock"`
	SampleRate   int    `json:"sample_rate"`
	BasebandRate int    `json:"baseband_rate"`
}

// EngineStatus represents the current daemon status
type EngineStatus struct {
	State       string         `json:"state"`
	Busy        bool           `json:"busy"`
	SendEnabled bool           `json:"send_enabled"`
	Status      session.Status `json:"status"`
	Radio       RadioInfo      `json:"radio"`
	Uptime      string         `json:"uptime"`
	StartTime   time.Time      `json:"start_time"`
	Version     string         `json:"version"`
}

type recorderFunc func(session.Record) error

func (f recorderFunc) Record(rec session.Record) error { return f(rec) }

// CoreEngine owns the controller, the history store and the socket server
type CoreEngine struct {
	config     *config.Config
	socketPath string
	listener   net.Listener
	running    bool
	mutex      sync.RWMutex
	startTime  time.Time

	controller *session.Controller
	bus        *StatusBus
	txMonitor  *monitor.TxMonitor
	store      *storage.TransmissionStore

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// MockOpener opens a transmitter streaming into a real-time mock sink
func MockOpener(cfg *config.Config) hardware.Opener {
	return func() (hardware.Transmitter, error) {
		sink := hardware.NewMockSink(cfg.Radio.SampleRate, true)
		return hardware.NewSDRTransmitter(sink, cfg.POCSAG.BasebandRate), nil
	}
}

// SettingsFromConfig returns the per session parameters of cfg
func SettingsFromConfig(cfg *config.Config) session.Settings {
	return session.Settings{
		SubChunkSize:    cfg.Radio.SubChunkSize,
		Amplitude:       int16(cfg.POCSAG.Amplitude),
		BasebandRate:    cfg.POCSAG.BasebandRate,
		DateFormat:      cfg.POCSAG.DateFormat,
		PollInterval:    time.Duration(cfg.POCSAG.PollIntervalMs) * time.Millisecond,
		StopTimeout:     time.Duration(cfg.Radio.StopTimeoutMs) * time.Millisecond,
		AutoOffWhenIdle: true,
	}
}

// NewCoreEngine creates an engine whose sessions open transmitters with
// opener
func NewCoreEngine(cfg *config.Config, opener hardware.Opener) (*CoreEngine, error) {
	mapper, err := cfg.Mapper()
	if err != nil {
		return nil, fmt.Errorf("invalid calibration: %w", err)
	}

	form, err := session.NewForm(mapper, session.Defaults{
		Capcode:   cfg.Defaults.Capcode,
		Frequency: cfg.Defaults.Frequency,
		Message:   cfg.Defaults.Message,
		Selection: cfg.Selection(),
	})
	if err != nil {
		return nil, fmt.Errorf("invalid form defaults: %w", err)
	}

	e := &CoreEngine{
		config:     cfg,
		socketPath: cfg.API.UnixSocket,
		startTime:  time.Now(),
		bus:        NewStatusBus(),
	}

	opts := session.Options{
		Form:      form,
		Open:      opener,
		Presenter: e.bus,
		Monitor:   session.NewTickerMonitor(),
		Recorder:  recorderFunc(e.record),
		Settings:  SettingsFromConfig(cfg),
	}
	if cfg.Monitor.Enabled {
		e.txMonitor = monitor.NewTxMonitor(cfg.POCSAG.BasebandRate, cfg.Monitor.FFTSize)
		opts.Observer = e.txMonitor
	}

	if e.controller, err = session.NewController(opts); err != nil {
		return nil, err
	}

	return e, nil
}

// Start opens the history store, starts the controller and, when a socket
// path is configured, the socket server
func (e *CoreEngine) Start() error {
	store, err := storage.NewTransmissionStore(e.config.Storage.DatabasePath, e.config.Storage.MaxRecords)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}

	e.mutex.Lock()
	e.store = store
	e.running = true
	e.startTime = time.Now()
	e.mutex.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.controller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Errorf("engine", "controller stopped: %v", err)
		}
	}()

	if e.socketPath == "" {
		logging.Info("engine", "Control socket disabled")
		return nil
	}

	os.Remove(e.socketPath)

	listener, err := net.Listen("unix", e.socketPath)
	if err != nil {
		e.Stop()
		return fmt.Errorf("failed to create Unix socket: %w", err)
	}
	e.listener = listener

	if err := os.Chmod(e.socketPath, 0660); err != nil {
		logging.Warnf("engine", "failed to set socket permissions: %v", err)
	}

	logging.Infof("engine", "Core engine listening on %s", e.socketPath)

	e.wg.Add(1)
	go e.acceptConnections()

	return nil
}

// Stop releases any transmission in flight and shuts everything down
func (e *CoreEngine) Stop() error {
	e.mutex.Lock()
	e.running = false
	e.mutex.Unlock()

	if e.listener != nil {
		e.listener.Close()
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()

	if store := e.historyStore(); store != nil {
		if err := store.Close(); err != nil {
			logging.Warnf("engine", "failed to close history: %v", err)
		}
	}

	if e.socketPath != "" {
		os.Remove(e.socketPath)
	}

	return nil
}

func (e *CoreEngine) isRunning() bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.running
}

func (e *CoreEngine) historyStore() *storage.TransmissionStore {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.store
}

func (e *CoreEngine) record(rec session.Record) error {
	store := e.historyStore()
	if store == nil {
		return nil
	}
	return store.Record(rec)
}

func (e *CoreEngine) post(ctx context.Context, ev session.Event) (session.Result, error) {
	if !e.isRunning() {
		return session.Result{}, ErrNotRunning
	}
	res, err := e.controller.Post(ctx, ev)
	if err != nil {
		return res, err
	}
	return res, res.Err
}

// View returns the form and session snapshot
func (e *CoreEngine) View(ctx context.Context) (session.View, error) {
	res, err := e.post(ctx, session.Snapshot{})
	return res.View, err
}

// Edit changes a text field by API name
func (e *CoreEngine) Edit(ctx context.Context, field, text string) (session.Result, error) {
	f, err := session.ParseField(field)
	if err != nil {
		return session.Result{}, err
	}
	return e.post(ctx, session.FieldChanged{Field: f, Text: text})
}

// SelectType changes the message type
func (e *CoreEngine) SelectType(ctx context.Context, index int) (session.Result, error) {
	return e.post(ctx, session.TypeChanged{Index: index})
}

// SelectOption changes one option selector
func (e *CoreEngine) SelectOption(ctx context.Context, selector string, index int) (session.Result, error) {
	return e.post(ctx, session.OptionsChanged{Selector: selector, Index: index})
}

// SetAmplifier switches the front end amplifier
func (e *CoreEngine) SetAmplifier(ctx context.Context, on bool) (session.Result, error) {
	index := 0
	if on {
		index = 1
	}
	return e.post(ctx, session.OptionsChanged{Selector: session.SelectorAmplifier, Index: index})
}

// Send starts a transmission of the current form
func (e *CoreEngine) Send(ctx context.Context) (session.Result, error) {
	return e.post(ctx, session.SendRequested{})
}

// Status returns the daemon status
func (e *CoreEngine) Status(ctx context.Context) (EngineStatus, error) {
	view, err := e.View(ctx)
	if err != nil {
		return EngineStatus{}, err
	}

	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return EngineStatus{
		State:       view.State,
		Busy:        view.Busy,
		SendEnabled: view.SendEnabled,
		Status:      view.Status,
		Radio: RadioInfo{
			Driver:       e.config.Radio.Driver,
			Mock:         e.config.Radio.Mock,
			SampleRate:   e.config.Radio.SampleRate,
			BasebandRate: e.config.POCSAG.BasebandRate,
		},
		Uptime:    time.Since(e.startTime).Round(time.Second).String(),
		StartTime: e.startTime,
		Version:   Version,
	}, nil
}

// History queries stored transmissions
func (e *CoreEngine) History(query storage.TransmissionQuery) ([]storage.Transmission, error) {
	store := e.historyStore()
	if store == nil {
		return nil, ErrNotRunning
	}
	return store.GetTransmissions(query)
}

// Transmission returns one stored transmission
func (e *CoreEngine) Transmission(id int64) (*storage.Transmission, error) {
	store := e.historyStore()
	if store == nil {
		return nil, ErrNotRunning
	}
	return store.GetTransmission(id)
}

// HistoryStats returns lifetime counters
func (e *CoreEngine) HistoryStats() (*storage.TransmissionStats, error) {
	store := e.historyStore()
	if store == nil {
		return nil, ErrNotRunning
	}
	return store.GetStats()
}

// Capcodes returns per capcode summaries
func (e *CoreEngine) Capcodes(limit int) ([]storage.CapcodeSummary, error) {
	store := e.historyStore()
	if store == nil {
		return nil, ErrNotRunning
	}
	return store.GetCapcodes(limit)
}

// Bus returns the status bus
func (e *CoreEngine) Bus() *StatusBus {
	return e.bus
}

// TxMonitor returns the bitstream monitor, nil when disabled
func (e *CoreEngine) TxMonitor() *monitor.TxMonitor {
	return e.txMonitor
}

func (e *CoreEngine) acceptConnections() {
	defer e.wg.Done()

	for {
		conn, err := e.listener.Accept()
		if err != nil {
			if e.isRunning() {
				logging.Warnf("engine", "Socket accept error: %v", err)
				continue
			}
			return
		}

		go e.handleConnection(conn)
	}
}

func (e *CoreEngine) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		cmd, err := protocol.ParseCommand(line)
		if err != nil {
			response := protocol.NewErrorResponse(fmt.Sprintf("parse error: %v", err))
			conn.Write([]byte(response.String() + "\n"))
			continue
		}

		response := e.handleCommand(cmd)
		conn.Write([]byte(response.String() + "\n"))

		if cmd.Type == protocol.CmdQuit {
			break
		}
	}
}

func (e *CoreEngine) handleCommand(cmd *protocol.Command) *protocol.Response {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch cmd.Type {
	case protocol.CmdStatus:
		status, err := e.Status(ctx)
		if err != nil {
			return protocol.NewErrorResponse(err.Error())
		}
		return protocol.NewSuccessResponse(map[string]interface{}{
			"status": status,
			"recent": e.bus.Recent(5),
		})

	case protocol.CmdForm:
		view, err := e.View(ctx)
		return viewResponse(session.Result{View: view, Accepted: true}, err)

	case protocol.CmdEdit:
		field, _ := cmd.Args["field"].(string)
		text, _ := cmd.Args["text"].(string)
		return viewResponse(e.Edit(ctx, field, text))

	case protocol.CmdType:
		index, _ := cmd.Args["index"].(int)
		return viewResponse(e.SelectType(ctx, index))

	case protocol.CmdOption:
		selector, _ := cmd.Args["selector"].(string)
		index, _ := cmd.Args["index"].(int)
		return viewResponse(e.SelectOption(ctx, selector, index))

	case protocol.CmdAmp:
		on, _ := cmd.Args["on"].(bool)
		return viewResponse(e.SetAmplifier(ctx, on))

	case protocol.CmdSend:
		return viewResponse(e.Send(ctx))

	case protocol.CmdHistory:
		return e.handleHistory(cmd)

	case protocol.CmdStats:
		stats, err := e.HistoryStats()
		if err != nil {
			return protocol.NewErrorResponse(err.Error())
		}
		return protocol.NewSuccessResponse(map[string]interface{}{
			"stats": stats,
		})

	case protocol.CmdPing:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"pong": time.Now().Unix(),
		})

	case protocol.CmdQuit:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"message": "goodbye",
		})

	default:
		return protocol.NewErrorResponse(fmt.Sprintf("unknown command: %s", cmd.Type))
	}
}

func viewResponse(res session.Result, err error) *protocol.Response {
	if err != nil {
		return protocol.NewErrorResponse(err.Error())
	}

	data := map[string]interface{}{
		"view":     res.View,
		"accepted": res.Accepted,
	}
	if res.Shown != "" || !res.Accepted {
		data["shown"] = res.Shown
	}
	return protocol.NewSuccessResponse(data)
}

func (e *CoreEngine) handleHistory(cmd *protocol.Command) *protocol.Response {
	query := storage.TransmissionQuery{Limit: defaultHistoryLimit}
	if limit, ok := cmd.Args["limit"].(int); ok {
		query.Limit = limit
	}
	if capcode, ok := cmd.Args["capcode"].(int); ok {
		query.Capcode = &capcode
	}

	transmissions, err := e.History(query)
	if err != nil {
		return protocol.NewErrorResponse(err.Error())
	}

	return protocol.NewSuccessResponse(map[string]interface{}{
		"transmissions": transmissions,
		"count":         len(transmissions),
	})
}
