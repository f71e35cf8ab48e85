// Package info implements GET /info (spec §6 ADD): process identity plus a
// live summary of pipeline state (worker count, per-worker queue depth,
// baseline key count), alongside the teacher's generic Prometheus-registry
// summary. GET /version is served by the cmd package's VersionHandler.
package info

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/user"
	"runtime"
	"time"

	"github.com/llm-sentinel/sentinel/cmd"
	"github.com/llm-sentinel/sentinel/metrics"
	"github.com/rs/zerolog/log"
)

// PipelineStatus is the subset of internal/ingest.Pipeline info needs,
// kept as an interface to avoid an info->ingest import cycle.
type PipelineStatus interface {
	WorkerCount() int
	QueueDepth(worker int) int
}

// BaselineStatus is the subset of internal/baseline.Store info needs.
type BaselineStatus interface {
	KeyCount() int
}

// Info holds application, process, and live pipeline status information.
type Info struct {
	Application struct {
		Version   string `json:"version"`
		BuildDate string `json:"build_date"`
		GoVersion string `json:"go_version"`
		GitCommit string `json:"git_commit"`
	} `json:"application"`
	Process struct {
		Pid       int       `json:"pid"`
		StartTime time.Time `json:"start_time"`
		Uptime    string    `json:"uptime"`
		OS        string    `json:"os"`
		Arch      string    `json:"arch"`
	} `json:"process"`
	User struct {
		UID string `json:"uid"`
		GID string `json:"gid"`
	} `json:"user"`
	Pipeline struct {
		Workers       int   `json:"workers"`
		TotalQueued   int   `json:"total_queued"`
		QueueDepths   []int `json:"queue_depths"`
		BaselineKeys  int   `json:"baseline_keys"`
	} `json:"pipeline"`
	Metrics struct {
		Summary     string                 `json:"summary"`
		Details     map[string]interface{} `json:"details"`
		LastUpdated time.Time              `json:"last_updated"`
	} `json:"metrics"`
}

var startTime = time.Now()

// NewInfoHandler builds the /info handler bound to the live pipeline and
// baseline store.
func NewInfoHandler(pipeline PipelineStatus, store BaselineStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := Info{}

		info.Application.Version = cmd.Version
		info.Application.BuildDate = cmd.BuildDate
		info.Application.GoVersion = runtime.Version()
		info.Application.GitCommit = cmd.GitCommit

		info.Process.Pid = os.Getpid()
		info.Process.StartTime = startTime
		info.Process.Uptime = formatUptime(time.Since(startTime))
		info.Process.OS = runtime.GOOS
		info.Process.Arch = runtime.GOARCH

		if currentUser, err := user.Current(); err == nil {
			info.User.UID = currentUser.Uid
			info.User.GID = currentUser.Gid
		} else {
			log.Ctx(r.Context()).Warn().Err(err).Msg("failed to get current user info")
			info.User.UID = "not available"
			info.User.GID = "not available"
		}

		if pipeline != nil {
			workers := pipeline.WorkerCount()
			info.Pipeline.Workers = workers
			info.Pipeline.QueueDepths = make([]int, workers)
			for i := 0; i < workers; i++ {
				d := pipeline.QueueDepth(i)
				info.Pipeline.QueueDepths[i] = d
				info.Pipeline.TotalQueued += d
			}
		}
		if store != nil {
			info.Pipeline.BaselineKeys = store.KeyCount()
		}

		metricsData := metrics.GetMetricsInfo()
		info.Metrics.Details = metricsData
		info.Metrics.Summary = generateMetricsSummary(metricsData)
		info.Metrics.LastUpdated = time.Now()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(info); err != nil {
			log.Ctx(r.Context()).Error().Err(err).Msg("failed to encode info to JSON")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}

// generateMetricsSummary creates a human-readable summary from metrics data.
func generateMetricsSummary(metricsData map[string]interface{}) string {
	if status, exists := metricsData["status"]; exists {
		return fmt.Sprintf("Metrics status: %v", status)
	}

	var summaryParts []string

	if httpData, exists := metricsData["http"].(map[string]interface{}); exists {
		if totalReqs, exists := httpData["total_requests"].(float64); exists {
			summaryParts = append(summaryParts, fmt.Sprintf("HTTP requests: %.0f", totalReqs))
		}
	}

	if runtimeData, exists := metricsData["runtime"].(map[string]interface{}); exists {
		if goroutines, exists := runtimeData["goroutines"].(int); exists {
			summaryParts = append(summaryParts, fmt.Sprintf("Goroutines: %d", goroutines))
		}
		if allocBytes, exists := runtimeData["allocated_bytes"].(int64); exists {
			summaryParts = append(summaryParts, fmt.Sprintf("Memory allocated: %.2f MB", float64(allocBytes)/1024/1024))
		}
	}

	if totalMetrics, exists := metricsData["total_metrics_collected"].(int); exists {
		summaryParts = append(summaryParts, fmt.Sprintf("Total metric families: %d", totalMetrics))
	}

	if len(summaryParts) == 0 {
		return "No metrics data available"
	}
	return join(summaryParts, " | ")
}

func join(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

// formatUptime converts a duration to a human-readable uptime string.
func formatUptime(duration time.Duration) string {
	totalSeconds := int(duration.Seconds())
	if totalSeconds < 60 {
		return fmt.Sprintf("%ds", totalSeconds)
	}
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
