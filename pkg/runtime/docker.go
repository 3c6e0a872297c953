package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
)

// ContainerSpec describes one sandbox container. The command is a holder
// process; work happens through subsequent execs.
type ContainerSpec struct {
	Image           string
	Cmd             []string
	WorkingDir      string
	NetworkDisabled bool
	MemoryBytes     int64
	NanoCPUs        int64

	// One bind mount: the host session directory onto the in-container
	// working directory.
	BindSource string
	BindTarget string
}

// ExecOutput is the raw result of one in-container exec: the undecoded
// multiplexed attach stream plus the exit code.
type ExecOutput struct {
	Raw      []byte
	ExitCode int
}

// Stats is a single resource usage sample for a running container.
type Stats struct {
	MemoryUsage int64
	CPUPercent  float64
}

// ContainerRuntime is the surface of the container engine the executor
// depends on. DockerRuntime implements it against dockerd; tests substitute
// fakes.
type ContainerRuntime interface {
	Ping(ctx context.Context) error
	Reset() error
	ImagePresent(ctx context.Context, image string) (bool, error)
	PullImage(ctx context.Context, image string) error
	CreateContainer(ctx context.Context, spec ContainerSpec) (string, error)
	StartContainer(ctx context.Context, containerID string) error
	IsRunning(ctx context.Context, containerID string) (bool, error)
	Exec(ctx context.Context, containerID, user string, cmd []string) (*ExecOutput, error)
	ContainerStats(ctx context.Context, containerID string) (*Stats, error)
	RemoveContainer(ctx context.Context, containerID string) error
	Close() error
}

// DockerRuntime implements ContainerRuntime using the Docker Engine API.
type DockerRuntime struct {
	mu  sync.Mutex
	cli *client.Client
}

// NewDockerRuntime creates a client from the environment (DOCKER_HOST etc.)
// with API version negotiation.
func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerRuntime{cli: cli}, nil
}

// Ping probes the daemon with a lightweight version call.
func (r *DockerRuntime) Ping(ctx context.Context) error {
	_, err := r.client().ServerVersion(ctx)
	return err
}

// Reset tears down and reopens the client connection. Used once when the
// daemon stops answering before giving up on a request.
func (r *DockerRuntime) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cli != nil {
		_ = r.cli.Close()
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("failed to reinitialize docker client: %w", err)
	}
	r.cli = cli
	return nil
}

func (r *DockerRuntime) client() *client.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cli
}

// ImagePresent reports whether the image exists locally. Errors other than
// not-found propagate unchanged.
func (r *DockerRuntime) ImagePresent(ctx context.Context, image string) (bool, error) {
	_, _, err := r.client().ImageInspectWithRaw(ctx, image)
	if err == nil {
		return true, nil
	}
	if errdefs.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// PullImage pulls an image and drains the progress stream to completion.
func (r *DockerRuntime) PullImage(ctx context.Context, image string) error {
	rc, err := r.client().ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", image, err)
	}
	defer rc.Close()

	// The pull is only complete once the stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", image, err)
	}
	return nil
}

// CreateContainer creates a container from the spec and returns its id.
func (r *DockerRuntime) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	cfg := &container.Config{
		Image:           spec.Image,
		Cmd:             spec.Cmd,
		WorkingDir:      spec.WorkingDir,
		NetworkDisabled: spec.NetworkDisabled,
	}
	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:   spec.MemoryBytes,
			NanoCPUs: spec.NanoCPUs,
		},
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: spec.BindSource,
				Target: spec.BindTarget,
			},
		},
	}

	resp, err := r.client().ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	return resp.ID, nil
}

// StartContainer starts a created container.
func (r *DockerRuntime) StartContainer(ctx context.Context, containerID string) error {
	if err := r.client().ContainerStart(ctx, containerID, types.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

// IsRunning reports whether the container's state is running.
func (r *DockerRuntime) IsRunning(ctx context.Context, containerID string) (bool, error) {
	info, err := r.client().ContainerInspect(ctx, containerID)
	if err != nil {
		return false, err
	}
	return info.State != nil && info.State.Running, nil
}

// Exec runs cmd inside the container as user, with stdout and stderr both
// attached, and drains the multiplexed stream to completion.
func (r *DockerRuntime) Exec(ctx context.Context, containerID, user string, cmd []string) (*ExecOutput, error) {
	cli := r.client()

	created, err := cli.ContainerExecCreate(ctx, containerID, types.ExecConfig{
		User:         user,
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attach, err := cli.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach exec: %w", err)
	}
	defer attach.Close()

	raw, err := io.ReadAll(attach.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read exec output: %w", err)
	}

	inspect, err := cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect exec: %w", err)
	}

	return &ExecOutput{Raw: raw, ExitCode: inspect.ExitCode}, nil
}

// ContainerStats takes one stats sample and reduces it to memory usage and
// a CPU percentage computed from the cpu/system deltas.
func (r *DockerRuntime) ContainerStats(ctx context.Context, containerID string) (*Stats, error) {
	resp, err := r.client().ContainerStats(ctx, containerID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to read container stats: %w", err)
	}
	defer resp.Body.Close()

	var stats types.StatsJSON
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("failed to decode container stats: %w", err)
	}

	cpuDelta := float64(stats.CPUStats.CPUUsage.TotalUsage) - float64(stats.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(stats.CPUStats.SystemUsage) - float64(stats.PreCPUStats.SystemUsage)

	var cpuPercent float64
	if systemDelta > 0 {
		cpuPercent = cpuDelta / systemDelta * 100.0
	}

	return &Stats{
		MemoryUsage: int64(stats.MemoryStats.Usage),
		CPUPercent:  cpuPercent,
	}, nil
}

// RemoveContainer force-deletes a container. Safe to call on containers
// that are still running.
func (r *DockerRuntime) RemoveContainer(ctx context.Context, containerID string) error {
	return r.client().ContainerRemove(ctx, containerID, types.ContainerRemoveOptions{Force: true})
}

// Close closes the client connection.
func (r *DockerRuntime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cli != nil {
		return r.cli.Close()
	}
	return nil
}
