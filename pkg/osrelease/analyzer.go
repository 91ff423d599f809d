package osrelease

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Runner executes a shell command on the target machine.
type Runner interface {
	Run(ctx context.Context, cmd string) (string, error)
}

// Reference https://manpages.ubuntu.com/manpages/bionic/zh_TW/man5/os-release.5.html
var paths = []string{"/etc/os-release", "/usr/lib/os-release", "/etc/centos-release", "/etc/photon-release"}

var versionRegex = regexp.MustCompile(`(\d+\.)?(\d+\.)?(\*|\d+)`)

// DetectOs reads the release files of the target until one parses.
func DetectOs(ctx context.Context, r Runner) (*OsVersion, error) {
	var errs []error

	for _, n := range paths {
		content, err := r.Run(ctx, "cat "+n)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n, err))
			continue
		}
		if strings.TrimSpace(content) == "" {
			continue
		}

		return Parse(content, n), nil
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("detect os: %w", errors.Join(errs...))
	}
	return nil, errors.New("detect os: no release file found")
}

// Parse reads the content of one release file.
func Parse(config, path string) *OsVersion {
	osv := &OsVersion{
		NAME: "Linux",
		OID:  "linux",
	}

	for _, line := range strings.Split(config, "\n") {
		line = strings.TrimSpace(line)
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}

		switch path {
		case "/etc/os-release", "/usr/lib/os-release":
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			value = strings.Trim(value, `"'`)

			switch key {
			case "NAME":
				osv.NAME = value
			case "ID":
				osv.OID = value
			case "ID_LIKE":
				osv.IDLike = value
			case "VERSION":
				osv.VERSION = value
			case "VERSION_ID":
				osv.VERSION_ID = value
			}

		case "/etc/centos-release":
			osv.NAME = "CentOS Linux"
			osv.OID = "centos"
			osv.IDLike = "rhel fedora"
			osv.VERSION_ID = versionRegex.FindString(line)

		case "/etc/photon-release":
			if _, value, ok := strings.Cut(line, "="); ok {
				osv.VERSION = strings.TrimSpace(value)
			} else {
				osv.NAME = "VMware Photon OS"
				osv.OID = "photon"
				osv.VERSION_ID = versionRegex.FindString(line)
			}
		}
	}

	return osv
}
