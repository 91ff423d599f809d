package inspector

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
)

// LocalRunner inspects the machine vulnmap runs on.
type LocalRunner struct{}

func (LocalRunner) Run(ctx context.Context, cmd string) (string, error) {
	c := exec.CommandContext(ctx, "sh", "-c", cmd)

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}

func (LocalRunner) Close() error {
	return nil
}

// Hardware reads the cpu model and platform through gopsutil.
func (LocalRunner) Hardware(ctx context.Context) map[string]string {
	hw := map[string]string{}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		hw["model_name"] = strings.TrimSpace(infos[0].ModelName)
	}

	if info, err := host.InfoWithContext(ctx); err == nil && info.KernelVersion != "" {
		hw["kernel_version"] = info.KernelVersion
	}

	return hw
}
