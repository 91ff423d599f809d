package inspector

import (
	"context"

	"github.com/docker/docker/client"
)

// Runner executes shell commands on one machine.
type Runner interface {
	Run(ctx context.Context, cmd string) (string, error)
	Close() error
}

// HardwareProber is implemented by runners that read hardware attributes natively.
type HardwareProber interface {
	Hardware(ctx context.Context) map[string]string
}

type DockerApi struct {
	DCli *client.Client
}

func NewDockerApi() (*DockerApi, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}

	return &DockerApi{DCli: cli}, nil
}
