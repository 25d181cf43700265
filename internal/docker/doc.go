// Package docker builds and pushes the release container images.
//
// This package handles:
//   - The Engine abstraction used by the orchestrator's docker step
//   - CLIEngine, which shells out to `docker build` / `docker push`
//   - APIEngine, which talks to the Docker Engine API through the SDK,
//     with automatic socket detection (Linux, macOS, Windows)
//   - OCI image labels stamped on every release image
//
// The SDK client comes from github.com/docker/docker/client, with version
// negotiation enabled for broad daemon compatibility.
package docker
