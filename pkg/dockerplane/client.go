// Package dockerplane implements the container control plane against the
// Docker Engine API. It is the only package that talks to the runtime; the
// rest of the daemon sees the types.ControlPlane interface.
package dockerplane

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/supporttools/compose-doctor/pkg/types"
)

// composeServiceLabel is the label Compose puts on every container it
// manages; its value is the service name.
const composeServiceLabel = "com.docker.compose.service"

// Logger provides optional logging functionality for the plane.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Plane talks to the Docker Engine. It implements types.ControlPlane; all
// actions are idempotent with respect to the container's end state.
type Plane struct {
	cli     *client.Client
	cleanup types.CleanupConfig
	logger  Logger
}

// New creates a plane using the environment's Docker connection settings
// (DOCKER_HOST and friends), with API version negotiation.
func New(cleanup types.CleanupConfig) (*Plane, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Plane{cli: cli, cleanup: cleanup}, nil
}

// SetLogger sets an optional logger for the plane.
func (p *Plane) SetLogger(logger Logger) {
	p.logger = logger
}

// Ping verifies connectivity to the Docker daemon.
func (p *Plane) Ping(ctx context.Context) error {
	if _, err := p.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return nil
}

// Close releases the underlying client connection.
func (p *Plane) Close() error {
	return p.cli.Close()
}

// ListServices returns the state of every Compose-managed container. A
// failed inspect skips that one service; the rest of the poll proceeds.
func (p *Plane) ListServices(ctx context.Context) ([]types.ServiceState, error) {
	filterArgs := filters.NewArgs()
	filterArgs.Add("label", composeServiceLabel)

	containers, err := p.cli.ContainerList(ctx, dockertypes.ContainerListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	services := make([]types.ServiceState, 0, len(containers))
	for _, c := range containers {
		inspected, err := p.cli.ContainerInspect(ctx, c.ID)
		if err != nil {
			p.logWarnf("Failed to inspect container %s, skipping this poll: %v", shortID(c.ID), err)
			continue
		}

		name := c.Labels[composeServiceLabel]
		if name == "" {
			name = strings.TrimPrefix(strings.Join(c.Names, ""), "/")
		}

		health := types.HealthNone
		if inspected.State != nil && inspected.State.Health != nil {
			switch inspected.State.Health.Status {
			case "healthy":
				health = types.HealthHealthy
			case "unhealthy":
				health = types.HealthUnhealthy
			case "starting":
				health = types.HealthStarting
			}
		}

		services = append(services, types.ServiceState{
			Name:         name,
			Lifecycle:    types.LifecycleState(c.State),
			Health:       health,
			RestartCount: inspected.RestartCount,
			Labels:       c.Labels,
		})
	}

	return services, nil
}

// Execute performs one repair action. restart and stop_then_start resolve
// the service's container fresh on every call, so retrying after a partial
// failure converges to the same end state.
func (p *Plane) Execute(ctx context.Context, action types.Action, service string) error {
	switch action {
	case types.ActionRestart:
		return p.restart(ctx, service)
	case types.ActionStopThenStart:
		return p.stopThenStart(ctx, service)
	case types.ActionCleanup:
		return p.runCleanup(ctx)
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

// restart restarts a running container, or starts it if it is not running.
func (p *Plane) restart(ctx context.Context, service string) error {
	c, err := p.findContainer(ctx, service)
	if err != nil {
		return err
	}

	if c.State == string(types.LifecycleRunning) || c.State == string(types.LifecycleRestarting) {
		p.logInfof("Restarting container %s for service %s", shortID(c.ID), service)
		if err := p.cli.ContainerRestart(ctx, c.ID, container.StopOptions{}); err != nil {
			return fmt.Errorf("failed to restart %s: %w", service, err)
		}
		return nil
	}

	p.logInfof("Starting stopped container %s for service %s", shortID(c.ID), service)
	if err := p.cli.ContainerStart(ctx, c.ID, dockertypes.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("failed to start %s: %w", service, err)
	}
	return nil
}

// stopThenStart forces a full stop before starting again. Stopping an
// already-stopped container is a no-op for the engine, which keeps the
// action idempotent.
func (p *Plane) stopThenStart(ctx context.Context, service string) error {
	c, err := p.findContainer(ctx, service)
	if err != nil {
		return err
	}

	p.logInfof("Stopping container %s for service %s", shortID(c.ID), service)
	if err := p.cli.ContainerStop(ctx, c.ID, container.StopOptions{}); err != nil {
		return fmt.Errorf("failed to stop %s: %w", service, err)
	}

	p.logInfof("Starting container %s for service %s", shortID(c.ID), service)
	if err := p.cli.ContainerStart(ctx, c.ID, dockertypes.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("failed to start %s: %w", service, err)
	}
	return nil
}

// runCleanup prunes stopped containers and old log files. Running it twice
// in a row reclaims nothing the second time and reports no error.
func (p *Plane) runCleanup(ctx context.Context) error {
	report, err := p.cli.ContainersPrune(ctx, filters.NewArgs())
	if err != nil {
		return fmt.Errorf("container prune failed: %w", err)
	}
	p.logInfof("Container prune reclaimed %d bytes (%d containers)",
		report.SpaceReclaimed, len(report.ContainersDeleted))

	if p.cleanup.LogDir == "" {
		return nil
	}
	deleted, err := pruneLogs(p.cleanup)
	if err != nil {
		return fmt.Errorf("log prune failed: %w", err)
	}
	p.logInfof("Log prune deleted %d files from %s", deleted, p.cleanup.LogDir)
	return nil
}

// findContainer resolves a service name to its container via the Compose
// service label.
func (p *Plane) findContainer(ctx context.Context, service string) (dockertypes.Container, error) {
	filterArgs := filters.NewArgs()
	filterArgs.Add("label", fmt.Sprintf("%s=%s", composeServiceLabel, service))

	containers, err := p.cli.ContainerList(ctx, dockertypes.ContainerListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return dockertypes.Container{}, fmt.Errorf("failed to resolve service %s: %w", service, err)
	}
	if len(containers) == 0 {
		return dockertypes.Container{}, fmt.Errorf("no container found for service %s", service)
	}
	if len(containers) > 1 {
		p.logWarnf("Service %s has %d containers, acting on the first", service, len(containers))
	}
	return containers[0], nil
}

// pruneLogs deletes *.log files older than the configured age, oldest
// first, capped at MaxFiles per pass so one cleanup cannot stall the
// action timeout on a huge directory.
func pruneLogs(cfg types.CleanupConfig) (int, error) {
	entries, err := os.ReadDir(cfg.LogDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read log directory %s: %w", cfg.LogDir, err)
	}

	cutoff := time.Now().AddDate(0, 0, -cfg.MaxAgeDays)

	type candidate struct {
		path    string
		modTime time.Time
	}
	var candidates []candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		candidates = append(candidates, candidate{
			path:    filepath.Join(cfg.LogDir, entry.Name()),
			modTime: info.ModTime(),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.Before(candidates[j].modTime)
	})

	limit := len(candidates)
	if cfg.MaxFiles > 0 && cfg.MaxFiles < limit {
		limit = cfg.MaxFiles
	}

	deleted := 0
	for _, c := range candidates[:limit] {
		if err := os.Remove(c.path); err != nil {
			return deleted, fmt.Errorf("failed to remove %s: %w", c.path, err)
		}
		deleted++
	}
	return deleted, nil
}

// shortID trims a container ID for log lines.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// logInfof logs an informational message if a logger is configured.
func (p *Plane) logInfof(format string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Infof("[DockerPlane] "+format, args...)
	}
}

// logWarnf logs a warning message if a logger is configured.
func (p *Plane) logWarnf(format string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Warnf("[DockerPlane] "+format, args...)
	}
}
