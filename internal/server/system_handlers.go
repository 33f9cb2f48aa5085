package server

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/cryptofolio/internal/database"
	"github.com/aristath/cryptofolio/internal/marketdata"
	"github.com/aristath/cryptofolio/internal/scheduler"
)

// CacheStatsProvider reports in-memory cache occupancy
type CacheStatsProvider interface {
	Stats() marketdata.CacheStats
}

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	databases   map[string]*database.DB
	cache       CacheStatsProvider
	jobs        map[string]scheduler.Job

	// host metric readers, replaceable in tests
	cpuPercent func() (float64, error)
	memPercent func() (float64, error)
	diskFreeGB func(path string) (float64, error)
}

// SystemStatusResponse represents the system status
type SystemStatusResponse struct {
	Status        string                `json:"status"` // "healthy" or "degraded"
	UptimeSeconds int64                 `json:"uptime_seconds"`
	CPUPercent    float64               `json:"cpu_percent"`
	MemoryPercent float64               `json:"memory_percent"`
	DiskFreeGB    float64               `json:"disk_free_gb"`
	Goroutines    int                   `json:"goroutines"`
	Cache         marketdata.CacheStats `json:"cache"`
	Databases     map[string]string     `json:"databases"`
	Timestamp     string                `json:"timestamp"`
}

// DBInfo describes one database file
type DBInfo struct {
	Name          string  `json:"name"`
	Path          string  `json:"path"`
	SizeMB        float64 `json:"size_mb"`
	WALSizeMB     float64 `json:"wal_size_mb"`
	PageCount     int64   `json:"page_count"`
	FreelistCount int64   `json:"freelist_count"`
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	databases map[string]*database.DB,
	cache CacheStatsProvider,
	jobs map[string]scheduler.Job,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		databases:   databases,
		cache:       cache,
		jobs:        jobs,
		cpuPercent:  sampleCPU,
		memPercent:  sampleMemory,
		diskFreeGB:  freeDiskGB,
	}
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		Databases:     make(map[string]string, len(h.databases)),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}

	if h.cache != nil {
		response.Cache = h.cache.Stats()
	}

	for name, db := range h.databases {
		if err := db.QuickCheck(ctx); err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Database ping failed")
			response.Databases[name] = "unavailable"
			response.Status = "degraded"
			continue
		}
		response.Databases[name] = "ok"
	}

	var err error
	if response.CPUPercent, err = h.cpuPercent(); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
	}
	if response.MemoryPercent, err = h.memPercent(); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
	}
	if response.DiskFreeGB, err = h.diskFreeGB(h.dataDir); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get disk usage")
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleDatabaseStats handles GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	infos := make([]DBInfo, 0, len(h.databases))
	totalSizeMB := 0.0

	for _, name := range h.databaseNames() {
		db := h.databases[name]
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to get database stats")
			continue
		}

		info := DBInfo{
			Name:          name,
			Path:          db.Path(),
			SizeMB:        float64(stats.SizeBytes) / 1024 / 1024,
			WALSizeMB:     float64(stats.WALSizeBytes) / 1024 / 1024,
			PageCount:     stats.PageCount,
			FreelistCount: stats.FreelistCount,
		}
		totalSizeMB += info.SizeMB + info.WALSizeMB
		infos = append(infos, info)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"databases":     infos,
		"total_size_mb": totalSizeMB,
		"last_checked":  time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleListJobs handles GET /api/system/jobs
func (h *SystemHandlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.jobs))
	for name := range h.jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": names})
}

// HandleTriggerJob handles POST /api/system/jobs/{name}. The job runs in the background.
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	job, ok := h.jobs[name]
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]string{
			"status":  "error",
			"message": "Unknown job: " + name,
		})
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job run triggered")

	go func() {
		start := time.Now()
		if err := job.Run(); err != nil {
			h.log.Error().Err(err).Str("job", name).Msg("Manual job run failed")
			return
		}
		h.log.Info().Str("job", name).Dur("duration_ms", time.Since(start)).Msg("Manual job run completed")
	}()

	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "success",
		"message": "Job " + name + " triggered",
	})
}

func (h *SystemHandlers) databaseNames() []string {
	names := make([]string, 0, len(h.databases))
	for name := range h.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// sampleCPU averages CPU usage over a short window to keep the endpoint fast
func sampleCPU() (float64, error) {
	percents, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(percents) == 0 {
		return 0, err
	}
	return percents[0], nil
}

func sampleMemory() (float64, error) {
	stat, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return stat.UsedPercent, nil
}

func freeDiskGB(path string) (float64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return float64(usage.Free) / 1e9, nil
}
