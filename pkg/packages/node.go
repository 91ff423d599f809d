package packages

import (
	"sort"

	"github.com/tidwall/gjson"
)

const npmCommand = "npm ls -g --depth=0 --json 2>/dev/null"

// getNpmPacks parses the global modules listed by `npm ls -g --json`
func getNpmPacks(out string) []*Package {
	packs := []*Package{}

	deps := gjson.Get(out, "dependencies")
	if !deps.IsObject() {
		return packs
	}

	deps.ForEach(func(k, v gjson.Result) bool {
		version := v.Get("version").String()
		if version == "" {
			return true
		}

		packs = append(packs, &Package{Name: k.String(), Version: version, Ecosystem: Npm})
		return true
	})

	sort.Slice(packs, func(i, j int) bool {
		return packs[i].Name < packs[j].Name
	})

	return packs
}
