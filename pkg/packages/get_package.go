package packages

import (
	"context"
	"fmt"

	"github.com/kvesta/vulnmap/pkg/osrelease"
)

var (
	dpkgId   = []string{"debian", "ubuntu", "raspbian", "linuxmint", "kali"}
	rpmId    = []string{"rhel", "centos", "fedora", "almalinux", "rocky", "ol", "amzn", "suse", "opensuse", "sles", "photon"}
	apkId    = []string{"alpine", "wolfi"}
	pacmanId = []string{"arch", "manjaro", "endeavouros"}
)

// ManagerFor picks the package manager from the release id, then from ID_LIKE.
func ManagerFor(osv *osrelease.OsVersion) (Manager, error) {
	for _, id := range osv.Family() {
		switch {
		case in(id, dpkgId):
			return Dpkg, nil
		case in(id, rpmId):
			return Rpm, nil
		case in(id, apkId):
			return Apk, nil
		case in(id, pacmanId):
			return Pacman, nil
		}
	}

	return "", fmt.Errorf("unsupported distribution %q", osv.OID)
}

// Command lists installed packages in the format the parser of m expects.
func (m Manager) Command() string {
	switch m {
	case Dpkg:
		return `dpkg-query -W -f='${db:Status-Abbrev}\t${Package}\t${Version}\t${Architecture}\n'`
	case Rpm:
		return `rpm -qa --qf '%{NAME}\t%{VERSION}-%{RELEASE}\t%{ARCH}\n'`
	case Apk:
		return "cat /lib/apk/db/installed"
	case Pacman:
		return "pacman -Q"
	}
	return ""
}

func (m Manager) Parse(out string) ([]*Package, error) {
	switch m {
	case Dpkg:
		return getAptPacks(out), nil
	case Rpm:
		return getRpmPacks(out), nil
	case Apk:
		return getApkPacks(out), nil
	case Pacman:
		return getArchPacks(out), nil
	}
	return nil, fmt.Errorf("unknown package manager %q", m)
}

// GetApp detects the distribution and lists its installed packages.
func (s *Packages) GetApp(ctx context.Context, r osrelease.Runner) error {
	osv, err := osrelease.DetectOs(ctx, r)
	if err != nil {
		return err
	}
	s.OsRelease = *osv

	m, err := ManagerFor(osv)
	if err != nil {
		return err
	}
	s.Manager = m

	out, err := r.Run(ctx, m.Command())
	if err != nil {
		return fmt.Errorf("list %s packages: %w", m, err)
	}

	s.Packs, err = m.Parse(out)
	return err
}

func in(id string, ids []string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
