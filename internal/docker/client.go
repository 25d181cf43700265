package docker

import (
	"context"
	"fmt"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/docker/docker/client"

	"github.com/shinji-kodama/release-automation/internal/model"
)

// defaultPingTimeout bounds the daemon health check run before the first
// image build. Docker Desktop on macOS can take a few seconds to answer
// after the VM wakes up, so anything much shorter gives false negatives
// on laptops that have been asleep.
const defaultPingTimeout = 5 * time.Second

// Client wraps the Docker Engine SDK client used by APIEngine. It handles
// Docker socket detection across platforms and exposes a daemon health
// check, so the release can tell "Docker is down" apart from "the build
// itself failed".
//
//	c, err := docker.NewClient()
//	if err != nil { /* handle */ }
//	defer c.Close()
//	engine := docker.NewAPIEngine(c, os.Stderr)
type Client struct {
	// inner is kept unexported so the rest of the tool only sees the
	// handful of calls a release needs (ping, build, push).
	inner *client.Client
}

// NewClient creates a Docker client with automatic socket detection.
//
// The detection strategy follows this priority order:
//  1. DOCKER_HOST environment variable (if set, used as-is)
//  2. Platform-specific default socket paths:
//     - Linux: /var/run/docker.sock
//     - macOS: /var/run/docker.sock, then ~/.docker/run/docker.sock
//     - Windows: npipe:////./pipe/docker_engine
//
// Returns a model.CLIError with ExitDockerNotRunning if no Docker socket
// is found or the client cannot be created.
func NewClient() (*Client, error) {
	// An explicit DOCKER_HOST always wins. Remote daemons, rootless
	// sockets and CI sidecars are all configured this way, and the SDK
	// parses every scheme it supports.
	if dockerHost := os.Getenv("DOCKER_HOST"); dockerHost != "" {
		return NewClientWithHost(dockerHost)
	}

	// Otherwise look for the local daemon where Docker installs it on
	// this platform.
	host, err := detectDockerHost()
	if err != nil {
		return nil, model.WrapCLIError(model.ExitDockerNotRunning, "Docker socket not found", err)
	}
	return NewClientWithHost(host)
}

// NewClientWithHost creates a Docker client connected to host, a Docker
// connection string such as "unix:///var/run/docker.sock" or
// "tcp://127.0.0.1:2375".
//
// Tests point it at an httptest server speaking the Engine API.
func NewClientWithHost(host string) (*Client, error) {
	// API version negotiation lets one binary work against daemons older
	// and newer than the SDK; the version is settled on the first request.
	c, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create Docker client for host %q", host), err)
	}
	return &Client{inner: c}, nil
}

// detectDockerHost determines the Docker socket path for the current platform.
// It checks for socket file existence rather than connecting; Ping verifies
// that the daemon actually answers.
func detectDockerHost() (string, error) {
	switch runtime.GOOS {
	case "linux":
		// Rootless setups live under $XDG_RUNTIME_DIR and are expected to
		// export DOCKER_HOST, so only the system socket is checked here.
		return detectUnixSocket([]string{"/var/run/docker.sock"})

	case "darwin":
		paths := []string{"/var/run/docker.sock"}
		if homeDir, err := os.UserHomeDir(); err == nil {
			// Newer Docker Desktop versions may not create the /var/run symlink.
			paths = append(paths, homeDir+"/.docker/run/docker.sock")
		}
		return detectUnixSocket(paths)

	case "windows":
		// os.Stat does not work on named pipes, so try a brief dial instead.
		pipePath := `//./pipe/docker_engine`
		conn, err := net.DialTimeout("pipe", pipePath, 1*time.Second)
		if err == nil {
			conn.Close()
			return "npipe://" + pipePath, nil
		}
		return "", fmt.Errorf("Docker named pipe not found at %s: %w", pipePath, err)

	default:
		return "", fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// detectUnixSocket returns the Docker host URI for the first existing path.
// The error lists every path tried, which is usually enough for a user to
// see that Docker Desktop simply is not started.
func detectUnixSocket(paths []string) (string, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return "unix://" + path, nil
		}
	}
	return "", fmt.Errorf("Docker socket not found at any of: %v; is Docker running?", paths)
}

// Ping verifies that the Docker daemon is reachable and responsive,
// waiting at most defaultPingTimeout.
func (c *Client) Ping(ctx context.Context) error {
	// The caller's context may have no deadline at all (a release run is
	// long), so the ping gets its own.
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if _, err := c.inner.Ping(pingCtx); err != nil {
		return model.WrapCLIError(model.ExitDockerNotRunning,
			"Docker daemon is not responding; is Docker running?", err)
	}
	return nil
}

// Close releases all resources held by the Docker client.
// Close is safe to call multiple times.
func (c *Client) Close() error {
	if c.inner != nil {
		return c.inner.Close()
	}
	return nil
}
