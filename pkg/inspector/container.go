package inspector

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerRunner runs commands inside a running container through docker exec.
type DockerRunner struct {
	Api       *DockerApi
	Container string
}

func DialDocker(ctx context.Context, container string) (*DockerRunner, error) {
	api, err := NewDockerApi()
	if err != nil {
		return nil, fmt.Errorf("init docker environment: %w", err)
	}

	ins, err := api.DCli.ContainerInspect(ctx, container)
	if err != nil {
		api.DCli.Close()
		if strings.Contains(err.Error(), "Is the docker daemon running?") {
			return nil, fmt.Errorf("docker is not running")
		}
		return nil, err
	}

	if ins.State == nil || !ins.State.Running {
		api.DCli.Close()
		return nil, fmt.Errorf("container %s is not running", container)
	}

	return &DockerRunner{Api: api, Container: container}, nil
}

func (d *DockerRunner) Run(ctx context.Context, cmd string) (string, error) {
	exec, err := d.Api.DCli.ContainerExecCreate(ctx, d.Container, types.ExecConfig{
		Cmd:          []string{"sh", "-c", cmd},
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", err
	}

	resp, err := d.Api.DCli.ContainerExecAttach(ctx, exec.ID, types.ExecStartCheck{})
	if err != nil {
		return "", err
	}
	defer resp.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, resp.Reader); err != nil {
		return "", err
	}

	inspect, err := d.Api.DCli.ContainerExecInspect(ctx, exec.ID)
	if err != nil {
		return "", err
	}
	if inspect.ExitCode != 0 {
		return stdout.String(), fmt.Errorf("exit code %d: %s", inspect.ExitCode, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}

func (d *DockerRunner) Close() error {
	return d.Api.DCli.Close()
}
