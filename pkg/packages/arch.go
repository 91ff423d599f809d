package packages

import (
	"strings"
)

func getArchPacks(pacman string) []*Package {
	packs := []*Package{}

	for _, pe := range strings.Split(pacman, "\n") {
		v := strings.Fields(pe)
		if len(v) != 2 {
			continue
		}

		packs = append(packs, &Package{Name: v[0], Version: v[1]})
	}

	return packs
}
