package packages

import (
	"github.com/kvesta/vulnmap/pkg/osrelease"
)

type Packages struct {
	OsRelease osrelease.OsVersion `json:"os_release"`
	Manager   Manager             `json:"manager"`

	// List all installed packages
	Packs []*Package `json:"packs"`

	LanguagePacks []*Package `json:"language_packs,omitempty"`
}

type Package struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	Architecture string `json:"architecture,omitempty"`

	// empty for system packages
	Ecosystem Ecosystem `json:"ecosystem,omitempty"`
}

type Manager string

const (
	Dpkg   Manager = "dpkg"
	Rpm    Manager = "rpm"
	Apk    Manager = "apk"
	Pacman Manager = "pacman"
)
