package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
)

// ImageCoordinator serialises pulls so that at most one pull per image is
// in flight across all concurrent executions. Distinct images pull in
// parallel. Per-image locks are created lazily and live for the process
// lifetime.
type ImageCoordinator struct {
	runtime ContainerRuntime

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewImageCoordinator creates a coordinator bound to a runtime.
func NewImageCoordinator(rt ContainerRuntime) *ImageCoordinator {
	return &ImageCoordinator{
		runtime: rt,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Ensure returns once the image is known to be present locally, pulling it
// if needed. Errors from the presence check that are not "not found"
// propagate unchanged.
func (c *ImageCoordinator) Ensure(ctx context.Context, image string) error {
	present, err := c.runtime.ImagePresent(ctx, image)
	if err != nil {
		return err
	}
	if present {
		return nil
	}

	lock := c.lockFor(image)
	lock.Lock()
	defer lock.Unlock()

	// Another waiter may have pulled it while we queued for the lock.
	present, err = c.runtime.ImagePresent(ctx, image)
	if err != nil {
		return err
	}
	if present {
		return nil
	}

	logger := log.WithComponent("images")
	logger.Info().Str("image", image).Msg("Pulling image")

	if err := c.runtime.PullImage(ctx, image); err != nil {
		metrics.ImagePullsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to pull image %s: %w", image, err)
	}

	metrics.ImagePullsTotal.WithLabelValues("ok").Inc()
	logger.Info().Str("image", image).Msg("Image pulled")
	return nil
}

func (c *ImageCoordinator) lockFor(image string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.locks[image]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[image] = lock
	}
	return lock
}
