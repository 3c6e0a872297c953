package executor

import (
	"context"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
)

// register adds a container to the active map when it starts running.
func (e *Engine) register(containerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.active[containerID] = &types.ContainerMetrics{
		StartTime:   time.Now().UTC(),
		ContainerID: containerID,
	}
	metrics.ActiveContainers.Set(float64(len(e.active)))
}

// teardown force-deletes the container and drops its metrics entry. Errors
// are logged and swallowed; teardown never changes an execution's result.
// It runs on its own context so a caller deadline cannot leak a container.
func (e *Engine) teardown(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	if err := e.runtime.RemoveContainer(ctx, containerID); err != nil {
		logger := log.WithContainer(containerID)
		logger.Error().Err(err).Msg("Failed to remove container")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, containerID)
	metrics.ActiveContainers.Set(float64(len(e.active)))
}

// sampleStats updates the container's metrics entry once, best-effort.
// It runs detached from the execution and must never block it.
func (e *Engine) sampleStats(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := e.runtime.ContainerStats(ctx, containerID)
	if err != nil {
		logger := log.WithContainer(containerID)
		logger.Debug().Err(err).Msg("Stats sample failed")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.active[containerID]; ok {
		entry.MemoryUsage = stats.MemoryUsage
		entry.CPUUsage = stats.CPUPercent
	}
}

// executionMetrics reads the sampled usage for the result. The sampler may
// not have landed yet; zeros are acceptable.
func (e *Engine) executionMetrics(containerID string, started time.Time) *types.ExecutionMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	m := &types.ExecutionMetrics{
		ExecutionTime: time.Since(started).Seconds(),
	}
	if entry, ok := e.active[containerID]; ok {
		m.MemoryUsage = entry.MemoryUsage
		m.CPUUsage = entry.CPUUsage
	}
	return m
}

// ActiveContainers returns a snapshot of the currently tracked containers.
func (e *Engine) ActiveContainers() []types.ContainerMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]types.ContainerMetrics, 0, len(e.active))
	for _, entry := range e.active {
		out = append(out, *entry)
	}
	return out
}
