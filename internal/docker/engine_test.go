package docker

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/docker/docker/api/types/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/release-automation/internal/model"
	"github.com/shinji-kodama/release-automation/internal/runner"
)

func TestCLIEngine_BuildArgs(t *testing.T) {
	e := NewCLIEngine(runner.NewFake())

	args := e.BuildArgs(BuildRequest{
		ContextDir: "/repo/code/SimpleHooks.Web",
		Tags:       []string{"gnairooze/simple-hooks:web-2.8.3", "gnairooze/simple-hooks:web-latest"},
		Labels:     map[string]string{LabelProject: "SimpleHooks.Web"},
	})

	assert.Equal(t, []string{
		"build",
		"-t", "gnairooze/simple-hooks:web-2.8.3",
		"-t", "gnairooze/simple-hooks:web-latest",
		"--label", "simplehooks.release.project=SimpleHooks.Web",
		"/repo/code/SimpleHooks.Web",
	}, args)
}

func TestCLIEngine_BuildAndPush(t *testing.T) {
	fake := runner.NewFake()
	e := NewCLIEngine(fake)
	ctx := context.Background()

	require.NoError(t, e.Build(ctx, BuildRequest{ContextDir: "/ctx", Tags: []string{"r/i:t"}}))
	require.NoError(t, e.Push(ctx, "r/i:t"))

	assert.Equal(t, []string{
		"docker build -t r/i:t /ctx",
		"docker push r/i:t",
	}, fake.CommandLines())
}

func TestCLIEngine_Failures(t *testing.T) {
	fake := runner.NewFake()
	fake.FailOn("docker build", errors.New("no daemon"))
	fake.FailOn("docker push", errors.New("denied"))
	e := NewCLIEngine(fake)
	ctx := context.Background()

	var cliErr *model.CLIError

	err := e.Build(ctx, BuildRequest{ContextDir: "/ctx"})
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitImageFailed, cliErr.Code)
	assert.Contains(t, err.Error(), "/ctx")

	err = e.Push(ctx, "r/i:t")
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitImageFailed, cliErr.Code)
	assert.Contains(t, err.Error(), "r/i:t")
}

// mockDaemon is a minimal Docker Engine API serving /_ping, /build and
// /images/{name}/push under any negotiated version prefix.
type mockDaemon struct {
	mu          sync.Mutex
	buildTags   []string
	buildLabels map[string]string
	contextFile []string
	contextLink map[string]string
	pushed      []string
	pushAuth    string
	buildStream string
}

func newMockDaemon(t *testing.T) (*mockDaemon, *Client) {
	t.Helper()
	m := &mockDaemon{buildStream: `{"stream":"Successfully built 0123456789ab\n"}` + "\n"}
	srv := httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(srv.Close)

	c, err := NewClientWithHost("tcp://" + strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return m, c
}

func (m *mockDaemon) serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("API-Version", "1.45")
	w.Header().Set("OSType", "linux")

	switch {
	case strings.HasSuffix(r.URL.Path, "/_ping"):
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "OK")

	case strings.HasSuffix(r.URL.Path, "/build"):
		var names []string
		links := map[string]string{}
		tr := tar.NewReader(r.Body)
		for {
			hdr, err := tr.Next()
			if err != nil {
				break
			}
			names = append(names, hdr.Name)
			if hdr.Typeflag == tar.TypeSymlink {
				links[hdr.Name] = hdr.Linkname
			}
		}
		_, _ = io.Copy(io.Discard, r.Body)
		labels := map[string]string{}
		_ = json.Unmarshal([]byte(r.URL.Query().Get("labels")), &labels)

		m.mu.Lock()
		m.buildTags = r.URL.Query()["t"]
		m.buildLabels = labels
		m.contextFile = names
		m.contextLink = links
		stream := m.buildStream
		m.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, stream)

	case strings.HasSuffix(r.URL.Path, "/push"):
		i := strings.Index(r.URL.Path, "/images/")
		name := strings.TrimSuffix(r.URL.Path[i+len("/images/"):], "/push")

		m.mu.Lock()
		m.pushed = append(m.pushed, name+":"+r.URL.Query().Get("tag"))
		m.pushAuth = r.Header.Get(registry.AuthHeader)
		m.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"Pushed"}`+"\n")

	default:
		http.NotFound(w, r)
	}
}

func writeContext(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM scratch\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "app.cs"), []byte("class App {}\n"), 0o644))
	return dir
}

func TestAPIEngine_Build(t *testing.T) {
	m, c := newMockDaemon(t)
	e := NewAPIEngine(c, nil)

	err := e.Build(context.Background(), BuildRequest{
		ContextDir: writeContext(t),
		Tags:       []string{"gnairooze/simple-hooks:web-2.8.3", "gnairooze/simple-hooks:web-latest"},
		Labels:     map[string]string{LabelOCIVersion: "2.8.3"},
	})
	require.NoError(t, err)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, []string{"gnairooze/simple-hooks:web-2.8.3", "gnairooze/simple-hooks:web-latest"}, m.buildTags)
	assert.Equal(t, "2.8.3", m.buildLabels[LabelOCIVersion])
	assert.ElementsMatch(t, []string{"Dockerfile", "src/", "src/app.cs"}, m.contextFile)
}

// A .NET project directory carries bin/ and obj/ output that must not be
// uploaded, and may link shared files into the context.
func TestAPIEngine_BuildHonorsDockerignore(t *testing.T) {
	m, c := newMockDaemon(t)
	dir := writeContext(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".dockerignore"), []byte("bin/\nobj/\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin", "huge.dll"), []byte("MZ"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "obj"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "obj", "project.assets.json"), []byte("{}"), 0o644))
	require.NoError(t, os.Symlink("Dockerfile", filepath.Join(dir, "link")))

	err := NewAPIEngine(c, nil).Build(context.Background(), BuildRequest{ContextDir: dir})
	require.NoError(t, err)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.ElementsMatch(t, []string{".dockerignore", "Dockerfile", "link", "src/", "src/app.cs"}, m.contextFile)
	assert.Equal(t, map[string]string{"link": "Dockerfile"}, m.contextLink)
}

func TestAPIEngine_BuildRejectedByDaemon(t *testing.T) {
	m, c := newMockDaemon(t)
	m.buildStream = `{"errorDetail":{"message":"pull access denied for mcr.microsoft.com/dotnet/aspnet"},"error":"pull access denied"}` + "\n"

	err := NewAPIEngine(c, nil).Build(context.Background(), BuildRequest{ContextDir: writeContext(t)})

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitImageFailed, cliErr.Code, "a reachable daemon is not reported as down")
	assert.NotEqual(t, model.ExitDockerNotRunning, cliErr.Code)
}

func TestAPIEngine_BuildStreamError(t *testing.T) {
	m, c := newMockDaemon(t)
	m.buildStream = `{"errorDetail":{"message":"RUN failed"},"error":"RUN failed"}` + "\n"
	e := NewAPIEngine(c, nil)

	err := e.Build(context.Background(), BuildRequest{ContextDir: writeContext(t)})

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitImageFailed, cliErr.Code)
	assert.Contains(t, err.Error(), "RUN failed")
}

func TestAPIEngine_Push(t *testing.T) {
	t.Setenv(EnvRegistryUsername, "gnairooze")
	t.Setenv(EnvRegistryPassword, "hunter2")
	m, c := newMockDaemon(t)
	e := NewAPIEngine(c, nil)

	require.NoError(t, e.Push(context.Background(), "gnairooze/simple-hooks:web-2.8.3"))

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, []string{"docker.io/gnairooze/simple-hooks:web-2.8.3"}, normalizePushed(m.pushed))

	auth, err := registry.DecodeAuthConfig(m.pushAuth)
	require.NoError(t, err)
	assert.Equal(t, "gnairooze", auth.Username)
	assert.Equal(t, "hunter2", auth.Password)
}

// normalizePushed prefixes Docker Hub references with docker.io so the
// assertion holds whether or not the SDK sends the familiar name.
func normalizePushed(refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if !strings.HasPrefix(r, "docker.io/") {
			r = "docker.io/" + r
		}
		out = append(out, r)
	}
	return out
}

func TestAPIEngine_DaemonUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := "tcp://" + strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	c, err := NewClientWithHost(host)
	require.NoError(t, err)
	defer c.Close()

	err = NewAPIEngine(c, nil).Build(context.Background(), BuildRequest{ContextDir: writeContext(t)})

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitDockerNotRunning, cliErr.Code)
}

func TestReadDockerignore(t *testing.T) {
	dir := t.TempDir()

	patterns, err := ReadDockerignore(dir)
	require.NoError(t, err)
	assert.Empty(t, patterns)

	content := "# build output\nbin/\n\nobj/\n!obj/keep.txt\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".dockerignore"), []byte(content), 0o644))
	patterns, err = ReadDockerignore(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"bin", "obj", "!obj/keep.txt"}, patterns)
}
