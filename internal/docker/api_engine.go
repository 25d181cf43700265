package docker

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/pkg/jsonmessage"

	"github.com/shinji-kodama/release-automation/internal/archive"
	"github.com/shinji-kodama/release-automation/internal/model"
)

// Environment variables holding registry credentials for APIEngine pushes.
// The docker CLI's credential store is not consulted by the SDK.
const (
	EnvRegistryUsername = "DOCKER_USERNAME"
	EnvRegistryPassword = "DOCKER_PASSWORD"
)

// APIEngine builds and pushes images through the Docker Engine API.
type APIEngine struct {
	cli      *Client
	progress io.Writer
	auth     registry.AuthConfig
}

// NewAPIEngine creates an APIEngine on top of cli. Build and push
// progress is written to progress (io.Discard when nil). Registry
// credentials are read from DOCKER_USERNAME / DOCKER_PASSWORD.
func NewAPIEngine(cli *Client, progress io.Writer) *APIEngine {
	if progress == nil {
		progress = io.Discard
	}
	return &APIEngine{
		cli:      cli,
		progress: progress,
		auth: registry.AuthConfig{
			Username: os.Getenv(EnvRegistryUsername),
			Password: os.Getenv(EnvRegistryPassword),
		},
	}
}

// Build sends ContextDir as a tar build context and waits for the build
// to finish. Errors reported inside the build output stream (a failing
// RUN instruction, for example) are returned as errors too.
func (e *APIEngine) Build(ctx context.Context, req BuildRequest) error {
	if err := e.cli.Ping(ctx); err != nil {
		return err
	}

	opts, err := contextTarOptions(req.ContextDir)
	if err != nil {
		return model.WrapCLIError(model.ExitImageFailed,
			fmt.Sprintf("docker build failed for %s", req.ContextDir), err)
	}

	// Stream the context through a pipe so large projects are never held
	// in memory as a whole.
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(archive.TarDir(req.ContextDir, pw, opts))
	}()
	defer pr.Close()

	resp, err := e.cli.inner.ImageBuild(ctx, pr, types.ImageBuildOptions{
		Tags:       req.Tags,
		Labels:     req.Labels,
		Dockerfile: dockerfileName,
		Remove:     true,
	})
	if err != nil {
		return model.WrapCLIError(model.ExitImageFailed,
			fmt.Sprintf("docker build failed for %s", req.ContextDir), err)
	}
	defer resp.Body.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, e.progress, 0, false, nil); err != nil {
		return model.WrapCLIError(model.ExitImageFailed,
			fmt.Sprintf("docker build failed for %s", req.ContextDir), err)
	}
	return nil
}

// Push uploads ref to its registry.
func (e *APIEngine) Push(ctx context.Context, ref string) error {
	// The daemon expects an auth header even for anonymous pushes;
	// an empty AuthConfig encodes to "{}".
	encoded, err := registry.EncodeAuthConfig(e.auth)
	if err != nil {
		return fmt.Errorf("failed to encode registry credentials: %w", err)
	}

	body, err := e.cli.inner.ImagePush(ctx, ref, image.PushOptions{RegistryAuth: encoded})
	if err != nil {
		return model.WrapCLIError(model.ExitImageFailed,
			fmt.Sprintf("docker push failed for %s", ref), err)
	}
	defer body.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(body, e.progress, 0, false, nil); err != nil {
		return model.WrapCLIError(model.ExitImageFailed,
			fmt.Sprintf("docker push failed for %s", ref), err)
	}
	return nil
}
