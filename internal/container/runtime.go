// Package container adapts the Docker Engine API into the Runtime
// interface the Grading Job Runner calls. Grounded in
// other_examples/codepr-narwhal's ContainerRunnerPool (image pull,
// ContainerCreate with a bind mount, ContainerStart), generalized from
// a fixed pool of pre-pulled images to "launch one container per job"
// since grading jobs use whatever image the deliverable names.
package container

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// Report is what the runtime hands back after a container finishes:
// enough to build an model.Report without this package depending on
// model (it stays a leaf).
type Report struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Runtime is the collaborator the Grading Job Runner calls to execute
// a prepared workspace inside a deliverable's image (spec §4.C, §6).
type Runtime interface {
	Run(ctx context.Context, image, workspacePath string, timeout time.Duration) (Report, error)
}

// DockerRuntime connects to a local socket or a TCP/TLS endpoint,
// selected by the configured dockerHost scheme (spec §6 Configuration).
type DockerRuntime struct {
	cli *client.Client
}

// NewDockerRuntime builds a client for dockerHost. An empty dockerHost
// selects the local Unix socket (client.FromEnv default); tcp/http/https
// schemes trigger TLS using certPath/keyPath plus the system CA bundle.
func NewDockerRuntime(dockerHost, certPath, keyPath string) (*DockerRuntime, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}

	switch {
	case dockerHost == "":
		opts = append(opts, client.FromEnv)
	case strings.HasPrefix(dockerHost, "tcp://"),
		strings.HasPrefix(dockerHost, "http://"),
		strings.HasPrefix(dockerHost, "https://"):
		tlsConfig, err := buildTLSConfig(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("build docker TLS config: %w", err)
		}
		httpClient := &http.Client{Transport: &http.Transport{TLSClientConfig: tlsConfig}}
		opts = append(opts, client.WithHost(dockerHost), client.WithHTTPClient(httpClient))
	default:
		opts = append(opts, client.WithHost(dockerHost))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, err
	}
	return &DockerRuntime{cli: cli}, nil
}

func buildTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	cfg := &tls.Config{}
	if certPath != "" && keyPath != "" {
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// Run pulls (if needed) and starts img with workspacePath bind-mounted
// read-write at /workspace, waits up to timeout, and collects logs.
// On container error or timeout the Report still comes back
// well-formed (spec §4.C).
func (r *DockerRuntime) Run(ctx context.Context, img, workspacePath string, timeout time.Duration) (Report, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reader, err := r.cli.ImagePull(runCtx, img, image.PullOptions{})
	if err == nil {
		io.Copy(io.Discard, reader)
		reader.Close()
	}
	// A pull failure is not fatal here: the image may already be
	// present locally (common in CI/offline grading environments).

	resp, err := r.cli.ContainerCreate(runCtx, &container.Config{
		Image:      img,
		WorkingDir: "/workspace",
	}, &container.HostConfig{
		Binds: []string{workspacePath + ":/workspace:rw"},
	}, nil, nil, "")
	if err != nil {
		return Report{ExitCode: -1, Stderr: err.Error()}, nil
	}
	defer r.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})

	if err := r.cli.ContainerStart(runCtx, resp.ID, container.StartOptions{}); err != nil {
		return Report{ExitCode: -1, Stderr: err.Error()}, nil
	}

	statusCh, errCh := r.cli.ContainerWait(runCtx, resp.ID, container.WaitConditionNotRunning)
	select {
	case <-runCtx.Done():
		return Report{ExitCode: -1, TimedOut: true, Stderr: "grading container timed out"}, nil
	case err := <-errCh:
		if err != nil {
			return Report{ExitCode: -1, Stderr: err.Error()}, nil
		}
	case status := <-statusCh:
		logs, _ := r.cli.ContainerLogs(context.Background(), resp.ID, container.LogsOptions{
			ShowStdout: true, ShowStderr: true,
		})
		var stdout, stderr string
		if logs != nil {
			defer logs.Close()
			data, _ := io.ReadAll(logs)
			stdout = string(data)
		}
		return Report{ExitCode: int(status.StatusCode), Stdout: stdout, Stderr: stderr}, nil
	}
	return Report{ExitCode: -1, Stderr: "unexpected container wait outcome"}, nil
}
