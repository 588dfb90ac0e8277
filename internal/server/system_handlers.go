package server

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/factorrisk/internal/database"
	"github.com/aristath/factorrisk/internal/scheduler"
)

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	reportDir   string
	startupTime time.Time
	databases   map[string]*database.DB
	scheduler   *scheduler.Scheduler
}

// NewSystemHandlers creates a new system handlers instance. sched may be nil.
func NewSystemHandlers(log zerolog.Logger, dataDir, reportDir string, databases map[string]*database.DB, sched *scheduler.Scheduler) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		dataDir:     dataDir,
		reportDir:   reportDir,
		startupTime: time.Now(),
		databases:   databases,
		scheduler:   sched,
	}
}

// SystemStatusResponse represents system status
type SystemStatusResponse struct {
	Status        string     `json:"status"` // "healthy" or "unhealthy"
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartedAt     string     `json:"started_at"`
	CPUPercent    float64    `json:"cpu_percent"`
	MemoryPercent float64    `json:"memory_percent"`
	Goroutines    int        `json:"goroutines"`
	Databases     []DBInfo   `json:"databases"`
	Jobs          []JobEntry `json:"jobs"`
}

// DBInfo describes one database file
type DBInfo struct {
	Name   string          `json:"name"`
	Path   string          `json:"path"`
	SizeMB float64         `json:"size_mb"`
	Stats  *database.Stats `json:"stats,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// JobEntry is a scheduled job as shown by the API
type JobEntry = scheduler.JobInfo

// DiskUsageResponse represents disk usage
type DiskUsageResponse struct {
	DataDirMB   float64 `json:"data_dir_mb"`
	ReportsMB   float64 `json:"reports_mb"`
	FreeMB      float64 `json:"free_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()

	dbs := h.databaseInfo()
	status := "healthy"
	for _, db := range dbs {
		if db.Error != "" {
			status = "unhealthy"
			break
		}
	}

	response := SystemStatusResponse{
		Status:        status,
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		StartedAt:     h.startupTime.Format(time.RFC3339),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
		Databases:     dbs,
		Jobs:          h.jobs(),
	}

	writeJSON(w, http.StatusOK, envelope(response, nil), h.log)
}

// HandleDatabaseStats handles GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	dbs := h.databaseInfo()
	totalSizeMB := 0.0
	for _, db := range dbs {
		totalSizeMB += db.SizeMB
	}

	writeJSON(w, http.StatusOK, envelope(dbs, map[string]interface{}{
		"total_size_mb": totalSizeMB,
	}), h.log)
}

// HandleDiskUsage handles GET /api/system/disk
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	response := DiskUsageResponse{
		DataDirMB: h.getDirSize(h.dataDir),
		ReportsMB: h.getDirSize(h.reportDir),
	}

	if usage, err := disk.Usage(h.dataDir); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get disk usage")
	} else {
		response.FreeMB = float64(usage.Free) / 1024 / 1024
		response.UsedPercent = usage.UsedPercent
	}

	writeJSON(w, http.StatusOK, envelope(response, nil), h.log)
}

// HandleJobsStatus handles GET /api/system/jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs()
	writeJSON(w, http.StatusOK, envelope(jobs, map[string]interface{}{"count": len(jobs)}), h.log)
}

// HandleTriggerJob handles POST /api/system/jobs/{name}. The job runs in the
// background; its outcome is logged.
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		http.Error(w, "Scheduler not running", http.StatusServiceUnavailable)
		return
	}

	name := chi.URLParam(r, "name")
	known := false
	for _, j := range h.scheduler.Jobs() {
		if j.Name == name {
			known = true
			break
		}
	}
	if !known {
		http.Error(w, "Unknown job", http.StatusNotFound)
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job trigger")
	go func() {
		if err := h.scheduler.RunByName(name); err != nil {
			h.log.Error().Err(err).Str("job", name).Msg("Manually triggered job failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, envelope(map[string]string{
		"status": "triggered",
		"job":    name,
	}, nil), h.log)
}

func (h *SystemHandlers) jobs() []JobEntry {
	if h.scheduler == nil {
		return []JobEntry{}
	}
	return h.scheduler.Jobs()
}

// databaseInfo collects file size and page statistics, sorted by name
func (h *SystemHandlers) databaseInfo() []DBInfo {
	out := make([]DBInfo, 0, len(h.databases))
	for name, db := range h.databases {
		info := DBInfo{Name: name, Path: db.Path()}
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to get database stats")
			info.Error = err.Error()
		} else {
			info.Stats = stats
			info.SizeMB = float64(stats.SizeBytes+stats.WALSizeBytes) / 1024 / 1024
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats calculates CPU and RAM usage percentages.
// The 100ms CPU sample keeps the endpoint responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
