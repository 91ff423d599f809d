package vulnscan

import (
	"sort"

	"github.com/kvesta/vulnmap/pkg/generator"
	"github.com/kvesta/vulnmap/pkg/inventory"
	"github.com/kvesta/vulnmap/pkg/vulnlib"
)

// labelFor is the name an item is cached and generated under.
func labelFor(kind generator.Kind, item inventory.Item) string {
	if kind == generator.Hardware {
		return inventory.HardwareLabel(item)
	}
	return item.Key()
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, l := range list {
			if l == v {
				found = true
				break
			}
		}
		if !found {
			list = append(list, v)
		}
	}
	return list
}

// chunk splits list into slices of at most size, size <= 0 keeps it whole.
func chunk(list []string, size int) [][]string {
	if len(list) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]string{list}
	}

	var chunks [][]string
	for len(list) > size {
		chunks = append(chunks, list[:size])
		list = list[size:]
	}
	if len(list) > 0 {
		chunks = append(chunks, list)
	}
	return chunks
}

// SortRecords orders records newest first, ties by id.
func SortRecords(records []vulnlib.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Published != records[j].Published {
			return records[i].Published > records[j].Published
		}
		return records[i].ID < records[j].ID
	})
}
