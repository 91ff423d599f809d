package inspector

import (
	"context"
	"fmt"
	"time"

	"github.com/kvesta/vulnmap/config"
	"github.com/kvesta/vulnmap/pkg/inventory"
	"github.com/kvesta/vulnmap/pkg/packages"

	"github.com/sirupsen/logrus"
)

// Dialer opens a runner for a machine of the inventory file.
type Dialer func(ctx context.Context, m inventory.Machine) (Runner, error)

// Collector acquires installed packages and hardware attributes of machines.
type Collector struct {
	dial    Dialer
	log     logrus.FieldLogger
	timeout time.Duration
	now     func() time.Time

	// also list pip and npm modules
	languages bool
}

func NewCollector(cfg *config.Config, log logrus.FieldLogger) *Collector {
	return &Collector{
		dial:      DefaultDialer(cfg.SSH, log),
		log:       log,
		timeout:   cfg.SSH.Timeout,
		now:       time.Now,
		languages: cfg.Inventory.LanguagePackages,
	}
}

// NewCollectorWithDialer is used when the runners come from elsewhere, e.g. tests.
func NewCollectorWithDialer(dial Dialer, log logrus.FieldLogger) *Collector {
	return &Collector{dial: dial, log: log, now: time.Now}
}

func DefaultDialer(cfg config.SSHConfig, log logrus.FieldLogger) Dialer {
	return func(ctx context.Context, m inventory.Machine) (Runner, error) {
		switch m.Source {
		case inventory.SourceSSH:
			knownHosts := m.KnownHosts
			if knownHosts == "" {
				knownHosts = cfg.KnownHosts
			}
			keyFile, err := config.ExpandPath(m.KeyFile)
			if err != nil {
				return nil, err
			}
			knownHosts, err = config.ExpandPath(knownHosts)
			if err != nil {
				return nil, err
			}

			return DialSSH(ctx, SSHOptions{
				Host:       m.Host,
				Port:       m.Port,
				User:       m.User,
				Password:   m.Password,
				KeyFile:    keyFile,
				KnownHosts: knownHosts,
				Insecure:   cfg.Insecure,
				Timeout:    cfg.Timeout,
			}, log)
		case inventory.SourceDocker:
			return DialDocker(ctx, m.Container)
		case inventory.SourceKubernetes:
			return DialPod(ctx, m.Kubeconfig, m.Namespace, m.Pod, m.Container)
		case inventory.SourceLocal:
			return LocalRunner{}, nil
		}
		return nil, fmt.Errorf("unknown source %q", m.Source)
	}
}

// Collect opens one connection and reads both packages and hardware over it.
// Hardware failures only lose the hardware part of the snapshot.
func (c *Collector) Collect(ctx context.Context, m inventory.Machine) (*inventory.Snapshot, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout*4)
		defer cancel()
	}

	r, err := c.dial(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer r.Close()

	items, err := c.Inventory(ctx, r)
	if err != nil {
		return nil, err
	}

	hw := c.Hardware(ctx, r)

	c.log.WithFields(logrus.Fields{
		"machine":  m.Name,
		"packages": len(items),
		"hardware": len(hw),
	}).Info("Inventory acquired")

	return inventory.NewSnapshot(m.Name, c.now(), items, hw), nil
}

// Inventory lists the installed packages of the connected machine, plus the
// language packages when enabled.
func (c *Collector) Inventory(ctx context.Context, r Runner) ([]inventory.Item, error) {
	packs := &packages.Packages{}
	if err := packs.GetApp(ctx, r); err != nil {
		return nil, err
	}

	if c.languages {
		packs.GetLanguagePacks(ctx, r)
	}

	c.log.WithFields(logrus.Fields{
		"os":      packs.OsRelease.NAME,
		"manager": packs.Manager,
	}).Debug("Package manager detected")

	items := make([]inventory.Item, 0, len(packs.Packs)+len(packs.LanguagePacks))
	for _, p := range append(packs.Packs, packs.LanguagePacks...) {
		items = append(items, inventory.Item{Name: p.Label(), Version: p.Version})
	}

	return items, nil
}

// Hardware reads the hardware attributes of the connected machine. Runners
// that can probe the host fill in what the commands left out.
func (c *Collector) Hardware(ctx context.Context, r Runner) map[string]string {
	hw := packages.GetHardware(ctx, r)

	if p, ok := r.(HardwareProber); ok {
		for k, v := range p.Hardware(ctx) {
			if _, exists := hw[k]; !exists && v != "" {
				hw[k] = v
			}
		}
	}

	return hw
}
