// Package monitoring turns a running DMA engine into a small REST server
// for external observation: live ring state, transfer progress, and
// process statistics.
package monitoring

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/sirupsen/logrus"

	"github.com/ringlab/loopdma/dma"
)

// Monitor serves the state of registered engines over HTTP.
type Monitor struct {
	log        *logrus.Logger
	portNumber int

	engines []*dma.Engine

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	server   *http.Server
	listener net.Listener
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		log: logrus.New(),
	}
}

// WithPortNumber sets the port the server listens on. Ports below 1000 are
// refused and replaced with a random port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is not allowed for the monitoring server, "+
				"using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithLogger sets the logger.
func (m *Monitor) WithLogger(l *logrus.Logger) *Monitor {
	m.log = l
	return m
}

// RegisterEngine registers an engine to be monitored.
func (m *Monitor) RegisterEngine(e *dma.Engine) {
	m.engines = append(m.engines, e)
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := NewProgressBar(name, total)

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a finished bar.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// StartServer starts serving. It returns the address the server actually
// listens on.
func (m *Monitor) StartServer() (string, error) {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", m.status)
	r.HandleFunc("/api/progress", m.progress)
	r.HandleFunc("/api/process", m.processStats)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", m.portNumber))
	if err != nil {
		return "", err
	}

	m.listener = listener
	m.server = &http.Server{Handler: r}

	go func() {
		serveErr := m.server.Serve(listener)
		if serveErr != nil && serveErr != http.ErrServerClosed {
			m.log.Error("monitoring server: ", serveErr)
		}
	}()

	addr := listener.Addr().String()
	m.log.WithField("addr", addr).Info("monitoring server listening")

	return addr, nil
}

// StopServer shuts the server down.
func (m *Monitor) StopServer() {
	if m.server != nil {
		_ = m.server.Close()
	}
}

func (m *Monitor) status(w http.ResponseWriter, _ *http.Request) {
	states := make([]dma.State, 0, len(m.engines))
	for _, e := range m.engines {
		states = append(states, e.State())
	}

	m.writeJSON(w, states)
}

func (m *Monitor) progress(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]*ProgressBar, len(m.progressBars))
	copy(bars, m.progressBars)
	m.progressBarsLock.Unlock()

	m.writeJSON(w, bars)
}

type processStats struct {
	PID        int32   `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
}

func (m *Monitor) processStats(w http.ResponseWriter, _ *http.Request) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	stats := processStats{PID: p.Pid}

	if cpu, cpuErr := p.CPUPercent(); cpuErr == nil {
		stats.CPUPercent = cpu
	}
	if mem, memErr := p.MemoryInfo(); memErr == nil {
		stats.RSSBytes = mem.RSS
	}

	m.writeJSON(w, stats)
}

func (m *Monitor) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		m.log.Error("encoding monitoring response: ", err)
	}
}
