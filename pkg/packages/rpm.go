package packages

import (
	"strings"
)

func getRpmPacks(out string) []*Package {
	packs := []*Package{}

	for _, l := range strings.Split(out, "\n") {
		values := strings.Split(strings.TrimSpace(l), "\t")
		if len(values) < 2 || values[0] == "" {
			continue
		}

		// gpg-pubkey entries are keys, not software
		if values[0] == "gpg-pubkey" {
			continue
		}

		p := &Package{
			Name:    values[0],
			Version: values[1],
		}
		if len(values) > 2 && values[2] != "(none)" {
			p.Architecture = values[2]
		}

		packs = append(packs, p)
	}

	return packs
}
