package executor

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/demux"
	"github.com/cuemby/burrow/pkg/ident"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/runtime"
	"github.com/cuemby/burrow/pkg/snapshot"
	"github.com/cuemby/burrow/pkg/store"
	"github.com/cuemby/burrow/pkg/types"
)

const (
	// WorkDir is both the in-container working directory and the bind
	// target for the session directory.
	WorkDir = "/mnt/data"

	// InterpreterUser runs the submitted code; RootUser only runs the
	// ownership fix-up on the bind mount.
	InterpreterUser = "jovyan"
	RootUser        = "root"

	genericFailure = "Failed to execute code. Please try again."

	startPollInterval = 100 * time.Millisecond
	startDeadline     = 10 * time.Second
	teardownTimeout   = 30 * time.Second
)

// Request is one execution submission. SessionID must be pre-allocated by
// the caller; Files name uploads the caller considers pre-existing.
type Request struct {
	Code      string
	SessionID string
	Language  types.Language
	Files     []types.FileReference
	Overrides *Overrides
}

// Overrides carries optional per-request resource settings; nil fields fall
// back to the ambient configuration.
type Overrides struct {
	MemoryLimitMB  *int64
	CPULimitCores  *float64
	NetworkEnabled *bool
}

// Engine runs code in single-use containers. One Engine serves the whole
// process; concurrent Execute calls are admitted by a counting semaphore
// sized MAX_CONCURRENT_CONTAINERS.
type Engine struct {
	cfg     *config.Config
	runtime runtime.ContainerRuntime
	images  *runtime.ImageCoordinator
	store   store.Store
	sem     *semaphore.Weighted

	mu     sync.Mutex
	active map[string]*types.ContainerMetrics
}

// New creates an Engine.
func New(cfg *config.Config, rt runtime.ContainerRuntime, st store.Store) *Engine {
	return &Engine{
		cfg:     cfg,
		runtime: rt,
		images:  runtime.NewImageCoordinator(rt),
		store:   st,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrentContainers)),
		active:  make(map[string]*types.ContainerMetrics),
	}
}

// Execute runs one piece of code in a fresh container and returns a
// structured result. It never returns an error: every failure mode is
// folded into the result's Status and Stderr. The container created for the
// run is force-deleted on every exit path.
func (e *Engine) Execute(ctx context.Context, req Request) (result *types.ExecutionResult) {
	logger := log.WithSession(req.SessionID)
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Execution panicked")
			result = errorResult(genericFailure)
		}
		metrics.ExecutionsTotal.WithLabelValues(string(req.Language), string(result.Status)).Inc()
		metrics.ExecutionDuration.WithLabelValues(string(req.Language)).Observe(time.Since(started).Seconds())
	}()

	if err := e.ensureRuntime(ctx); err != nil {
		logger.Error().Err(err).Msg("Container runtime unreachable")
		return errorResult(genericFailure)
	}

	sessionDir := filepath.Join(e.cfg.UploadPathAbs(), req.SessionID)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		logger.Error().Err(err).Str("dir", sessionDir).Msg("Failed to create session directory")
		return errorResult(genericFailure)
	}

	before := snapshot.Take(sessionDir)

	// The only place an execution blocks on other executions.
	if err := e.sem.Acquire(ctx, 1); err != nil {
		logger.Error().Err(err).Msg("Admission aborted")
		return errorResult(genericFailure)
	}
	defer e.sem.Release(1)

	image := e.cfg.ImageFor(req.Language)
	if err := e.images.Ensure(ctx, image); err != nil {
		logger.Error().Err(err).Str("image", image).Msg("Image not available")
		return errorResult(fmt.Sprintf("Failed to prepare image %s: %v", image, err))
	}

	return e.runInContainer(ctx, req, logger, sessionDir, before, started)
}

// runInContainer covers the container-holding part of an execution; the
// deferred teardown guarantees the container is removed on every path.
func (e *Engine) runInContainer(
	ctx context.Context,
	req Request,
	logger zerolog.Logger,
	sessionDir string,
	before map[string]snapshot.FileState,
	started time.Time,
) *types.ExecutionResult {
	spec := e.containerSpec(req, sessionDir)

	containerID, err := e.runtime.CreateContainer(ctx, spec)
	if err != nil {
		logger.Error().Err(err).Str("image", spec.Image).Msg("Failed to create container")
		return errorResult(genericFailure)
	}
	defer e.teardown(containerID)

	if err := e.startAndAwait(ctx, containerID); err != nil {
		logger.Error().Err(err).Str("container_id", containerID).Msg("Container failed to start")
		return errorResult(genericFailure)
	}

	e.register(containerID)
	go e.sampleStats(containerID)

	// The bind mount arrives root-owned; the interpreter user must be able
	// to write to it. Failure is logged but not fatal.
	if out, err := e.runtime.Exec(ctx, containerID, RootUser, []string{"chown", "-R", InterpreterUser + ":users", WorkDir}); err != nil {
		logger.Warn().Err(err).Msg("Ownership fix-up failed")
	} else if out.ExitCode != 0 {
		logger.Warn().Int("exit_code", out.ExitCode).Str("output", demux.Decode(out.Raw)).Msg("Ownership fix-up failed")
	}

	execCtx, cancel := context.WithTimeout(ctx, e.cfg.SandboxMaxExecutionTime)
	defer cancel()

	out, err := e.runtime.Exec(execCtx, containerID, InterpreterUser, append(req.Language.Argv(), req.Code))
	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			logger.Warn().Dur("limit", e.cfg.SandboxMaxExecutionTime).Msg("Execution timed out")
			return errorResult(fmt.Sprintf("Execution exceeded the time limit of %s", e.cfg.SandboxMaxExecutionTime))
		}
		logger.Error().Err(err).Msg("Interpreter exec failed")
		return errorResult(genericFailure)
	}

	decoded := demux.Decode(out.Raw)

	if out.ExitCode != 0 {
		logger.Info().Int("exit_code", out.ExitCode).Msg("Interpreter exited non-zero")
		return &types.ExecutionResult{
			Stdout: "",
			Stderr: decoded,
			Status: types.StatusError,
			Files:  []types.FileRecord{},
		}
	}

	after := snapshot.Take(sessionDir)
	changed := snapshot.Diff(before, after)

	files, err := e.registerFiles(ctx, req.SessionID, changed, after)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to register output files")
		return errorResult(genericFailure)
	}

	return &types.ExecutionResult{
		Stdout:  decoded,
		Stderr:  "",
		Status:  types.StatusOK,
		Files:   files,
		Metrics: e.executionMetrics(containerID, started),
	}
}

// ensureRuntime probes the daemon and attempts a single client
// reinitialisation before giving up.
func (e *Engine) ensureRuntime(ctx context.Context) error {
	if err := e.runtime.Ping(ctx); err == nil {
		return nil
	}
	if err := e.runtime.Reset(); err != nil {
		return err
	}
	return e.runtime.Ping(ctx)
}

func (e *Engine) containerSpec(req Request, sessionDir string) runtime.ContainerSpec {
	memoryMB := e.cfg.ContainerMemoryLimitMB
	cpuCores := e.cfg.ContainerCPULimit
	networkEnabled := e.cfg.DockerNetworkEnabled

	if o := req.Overrides; o != nil {
		if o.MemoryLimitMB != nil {
			memoryMB = *o.MemoryLimitMB
		}
		if o.CPULimitCores != nil {
			cpuCores = *o.CPULimitCores
		}
		if o.NetworkEnabled != nil {
			networkEnabled = *o.NetworkEnabled
		}
	}

	return runtime.ContainerSpec{
		Image:           e.cfg.ImageFor(req.Language),
		Cmd:             []string{"sleep", "infinity"},
		WorkingDir:      WorkDir,
		NetworkDisabled: !networkEnabled,
		MemoryBytes:     memoryMB * 1024 * 1024,
		NanoCPUs:        int64(cpuCores * 1e9),
		BindSource:      sessionDir,
		BindTarget:      WorkDir,
	}
}

// startAndAwait starts the container and polls until it reports running.
func (e *Engine) startAndAwait(ctx context.Context, containerID string) error {
	if err := e.runtime.StartContainer(ctx, containerID); err != nil {
		return err
	}

	deadline := time.Now().Add(startDeadline)
	for {
		running, err := e.runtime.IsRunning(ctx, containerID)
		if err != nil {
			return err
		}
		if running {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("container %s not running after %s", containerID, startDeadline)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(startPollInterval):
		}
	}
}

// registerFiles turns the change set into persisted file records. Paths
// that are no longer regular files by registration time are skipped.
func (e *Engine) registerFiles(
	ctx context.Context,
	sessionID string,
	changed []string,
	after map[string]snapshot.FileState,
) ([]types.FileRecord, error) {
	files := make([]types.FileRecord, 0, len(changed))

	for _, rel := range changed {
		state := after[rel]

		info, err := os.Stat(state.Path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		contentType := mime.TypeByExtension(path.Ext(rel))
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		mtimeDigest := md5.Sum([]byte(strconv.FormatFloat(state.MTime, 'f', -1, 64)))

		rec := types.FileRecord{
			ID:               ident.New(),
			SessionID:        sessionID,
			Filename:         path.Base(rel),
			Filepath:         sessionID + "/" + rel,
			Size:             state.Size,
			ContentType:      contentType,
			OriginalFilename: path.Base(rel),
			Etag:             hex.EncodeToString(mtimeDigest[:]),
		}

		if err := e.store.Upsert(ctx, &rec); err != nil {
			return nil, err
		}

		metrics.FilesRegisteredTotal.Inc()
		files = append(files, rec)
	}

	return files, nil
}

func errorResult(stderr string) *types.ExecutionResult {
	return &types.ExecutionResult{
		Stdout: "",
		Stderr: stderr,
		Status: types.StatusError,
		Files:  []types.FileRecord{},
	}
}
