package packages

import (
	"strings"

	"github.com/tidwall/gjson"
)

const pipCommand = "python3 -m pip list --format=json --disable-pip-version-check 2>/dev/null"

// getPipPacks parses `pip list --format=json`, the same set `pip freeze` reports
func getPipPacks(out string) []*Package {
	packs := []*Package{}

	if !gjson.Valid(out) {
		return packs
	}

	gjson.Parse(out).ForEach(func(_, v gjson.Result) bool {
		name := strings.ToLower(v.Get("name").String())
		version := v.Get("version").String()
		if name == "" || version == "" {
			return true
		}

		packs = append(packs, &Package{Name: name, Version: version, Ecosystem: Pip})
		return true
	})

	return packs
}
