package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/api/shared"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/platform/logger"
)

// StatusConfig is the slice of server configuration echoed back by the
// status endpoint.
type StatusConfig struct {
	Workers      int     `json:"workers"`
	ImagesDir    string  `json:"images_dir"`
	OutputDir    string  `json:"output_dir"`
	EnableReview bool    `json:"enable_review"`
	ReviewRate   float64 `json:"review_rate"`
}

// TasksSummary counts the registered tasks by activity.
type TasksSummary struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// SystemSnapshot is a point-in-time view of host resources.
type SystemSnapshot struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
	MemoryTotalMB uint64  `json:"memory_total_mb"`
	DiskFreeGB    float64 `json:"disk_free_gb"`
	DiskTotalGB   float64 `json:"disk_total_gb"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Status        string          `json:"status"`
	UptimeSeconds float64         `json:"uptime_seconds"`
	Tasks         TasksSummary    `json:"tasks"`
	Config        StatusConfig    `json:"config"`
	System        *SystemSnapshot `json:"system,omitempty"`
}

// StatusHandler reports service health, configuration and a host resource
// snapshot.
type StatusHandler struct {
	manager TaskManager
	cfg     StatusConfig
	started time.Time
	logger  *slog.Logger
}

// NewStatusHandler creates a new StatusHandler. The uptime clock starts at
// construction.
func NewStatusHandler(manager TaskManager, cfg StatusConfig, logger *slog.Logger) *StatusHandler {
	if manager == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("task manager cannot be nil for StatusHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for StatusHandler")
	}

	return &StatusHandler{
		manager: manager,
		cfg:     cfg,
		started: time.Now(),
		logger:  logger.With(slog.String("component", "status_handler")),
	}
}

// GetStatus handles GET /api/status requests.
// Host metrics are best-effort: a gopsutil failure drops the system block
// from the response rather than failing the request.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	tasks := h.manager.List()
	summary := TasksSummary{Total: len(tasks)}
	for _, t := range tasks {
		if t.Status().Active() {
			summary.Active++
		}
	}

	resp := StatusResponse{
		Status:        "running",
		UptimeSeconds: time.Since(h.started).Seconds(),
		Tasks:         summary,
		Config:        h.cfg,
		System:        h.systemSnapshot(log),
	}

	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// systemSnapshot collects host metrics, or nil if none could be read.
func (h *StatusHandler) systemSnapshot(log *slog.Logger) *SystemSnapshot {
	snap := &SystemSnapshot{}
	ok := false

	// Interval 0 reports usage since the previous call instead of
	// blocking the request to sample.
	if p, err := cpu.Percent(0, false); err != nil {
		log.Debug("could not read cpu usage", slog.String("error", err.Error()))
	} else if len(p) > 0 {
		snap.CPUPercent = p[0]
		ok = true
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		log.Debug("could not read memory usage", slog.String("error", err.Error()))
	} else {
		snap.MemoryPercent = vm.UsedPercent
		snap.MemoryUsedMB = vm.Used / (1 << 20)
		snap.MemoryTotalMB = vm.Total / (1 << 20)
		ok = true
	}

	if du, err := disk.Usage(h.cfg.OutputDir); err != nil {
		log.Debug("could not read disk usage",
			slog.String("path", h.cfg.OutputDir),
			slog.String("error", err.Error()))
	} else {
		snap.DiskFreeGB = float64(du.Free) / (1 << 30)
		snap.DiskTotalGB = float64(du.Total) / (1 << 30)
		ok = true
	}

	if !ok {
		return nil
	}
	return snap
}
