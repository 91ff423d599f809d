package packages

import (
	"strings"
)

// getAptPacks parses dpkg-query output, keeping fully installed packages only
func getAptPacks(dpkg string) []*Package {
	packs := []*Package{}

	for _, l := range strings.Split(dpkg, "\n") {
		values := strings.Split(strings.TrimSpace(l), "\t")
		if len(values) < 3 {
			continue
		}

		if !strings.HasPrefix(strings.TrimSpace(values[0]), "ii") {
			continue
		}

		p := &Package{
			Name:    values[1],
			Version: values[2],
		}
		if len(values) > 3 {
			p.Architecture = values[3]
		}
		packs = append(packs, p)
	}

	return packs
}

// getApkPacks parses the alpine installed database, one blank-line separated
// block per package
func getApkPacks(apk string) []*Package {
	packs := []*Package{}

	for _, pe := range strings.Split(apk, "\n\n") {
		if len(strings.TrimSpace(pe)) < 1 {
			continue
		}

		p := &Package{}
		for _, l := range strings.Split(pe, "\n") {
			key, value, ok := strings.Cut(l, ":")
			if !ok {
				continue
			}
			value = strings.TrimSpace(value)

			switch key {
			case "P":
				p.Name = value
			case "V":
				p.Version = value
			case "A":
				p.Architecture = value
			default:
				// ignore
			}
		}

		if p.Name != "" {
			packs = append(packs, p)
		}
	}

	return packs
}
