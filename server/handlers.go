package server

import (
	"context"
	"net/http"
	"os"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/teranos/crosspost/logger"
	"github.com/teranos/crosspost/version"
)

// HandleProcess runs one processing pass and responds with its summary.
// Per-job failures are part of the summary, never an error status. Passes
// may overlap; the engine's per-job locks keep them apart. The pass runs
// to completion even if the caller hangs up: publish calls already made
// must not be cut short.
func (s *Server) HandleProcess(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if s.getState() != ServerStateRunning {
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
		return
	}

	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	summary := s.processor.ProcessDueJobs(context.WithoutCancel(r.Context()))
	if err := writeJSON(w, http.StatusOK, summary); err != nil {
		logger.FromContext(r.Context(), s.logger).Warnw("Failed to write summary", logger.FieldError, err)
	}
}

// HandleHealth reports liveness with build info. A draining server answers
// 503 so load balancers stop routing triggers to it.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	info := version.Get()
	state := s.getState()

	resp := HealthResponse{
		Status:  "ok",
		State:   state.String(),
		Version: info.Version,
		Commit:  info.CommitHash,
	}
	resp.RSSBytes, resp.MemAvailableBytes = memoryStats()

	status := http.StatusOK
	if state != ServerStateRunning {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// memoryStats returns this process's resident set and the host's available
// memory. Either is zero when the platform cannot report it.
func memoryStats() (rss, available uint64) {
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfo(); err == nil {
			rss = mi.RSS
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		available = vm.Available
	}
	return rss, available
}
