package packages

import (
	"context"
	"strings"

	"github.com/kvesta/vulnmap/pkg/osrelease"
)

type Ecosystem string

const (
	Pip Ecosystem = "pip"
	Npm Ecosystem = "npm"
)

var ecosystems = []struct {
	ecosystem Ecosystem
	cmd       string
	parse     func(string) []*Package
}{
	{Pip, pipCommand, getPipPacks},
	{Npm, npmCommand, getNpmPacks},
}

// GetLanguagePacks lists globally installed language modules. A missing
// interpreter or package tool only means no modules of that ecosystem.
func (s *Packages) GetLanguagePacks(ctx context.Context, r osrelease.Runner) {
	for _, e := range ecosystems {
		out, err := r.Run(ctx, e.cmd)
		if err != nil || strings.TrimSpace(out) == "" {
			continue
		}

		s.LanguagePacks = append(s.LanguagePacks, e.parse(out)...)
	}
}

// Label is the inventory name of the package, language modules are
// prefixed with their ecosystem so they never shadow a system package.
func (p *Package) Label() string {
	if p.Ecosystem == "" {
		return p.Name
	}
	return string(p.Ecosystem) + ":" + p.Name
}
