package inventory

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	SourceSSH        = "ssh"
	SourceDocker     = "docker"
	SourceKubernetes = "kubernetes"
	SourceLocal      = "local"
)

// Machine describes how to reach one host of the inventory file.
type Machine struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Source string `yaml:"source"`

	// ssh
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	KeyFile    string `yaml:"key_file"`
	KnownHosts string `yaml:"known_hosts"`

	// docker
	Container string `yaml:"container"`

	// kubernetes
	Namespace  string `yaml:"namespace"`
	Pod        string `yaml:"pod"`
	Kubeconfig string `yaml:"kubeconfig"`
}

func (m Machine) IsLinux() bool {
	return m.Type == "" || strings.EqualFold(m.Type, "linux")
}

type File struct {
	Machines []Machine `yaml:"machines"`
}

// LoadMachines parses the inventory file. The source override, when set,
// replaces the source of every machine.
func LoadMachines(path, sourceOverride string) ([]Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory %s: %w", path, err)
	}

	return ParseMachines(data, sourceOverride)
}

func ParseMachines(data []byte, sourceOverride string) ([]Machine, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse inventory: %w", err)
	}

	seen := map[string]bool{}
	for i := range f.Machines {
		m := &f.Machines[i]

		if m.Name == "" {
			m.Name = m.Host
		}
		if m.Name == "" {
			return nil, fmt.Errorf("machine #%d has neither name nor host", i+1)
		}
		if seen[m.Name] {
			return nil, fmt.Errorf("duplicate machine name %q", m.Name)
		}
		seen[m.Name] = true

		if sourceOverride != "" {
			m.Source = sourceOverride
		}
		if m.Source == "" {
			m.Source = SourceSSH
		}

		switch m.Source {
		case SourceSSH:
			if m.Host == "" {
				return nil, fmt.Errorf("machine %q: ssh source requires host", m.Name)
			}
			if m.Port == 0 {
				m.Port = 22
			}
		case SourceDocker:
			if m.Container == "" {
				m.Container = m.Name
			}
		case SourceKubernetes:
			if m.Pod == "" {
				return nil, fmt.Errorf("machine %q: kubernetes source requires pod", m.Name)
			}
			if m.Namespace == "" {
				m.Namespace = "default"
			}
		case SourceLocal:
		default:
			return nil, fmt.Errorf("machine %q: unknown source %q", m.Name, m.Source)
		}
	}

	return f.Machines, nil
}
