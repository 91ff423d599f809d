package inventory

import (
	"sort"
	"time"
)

type Item struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Key is the label used for identifier generation and the identifier cache,
// so that a version bump never hits the entry of the previous version.
func (i Item) Key() string {
	if i.Version == "" {
		return i.Name
	}
	return i.Name + "@" + i.Version
}

type Snapshot struct {
	Machine   string    `json:"machine"`
	Timestamp time.Time `json:"timestamp"`
	Items     []Item    `json:"items"`
	Hardware  []Item    `json:"hardware,omitempty"`
}

// NewSnapshot builds a snapshot keyed by item name. On duplicate names the
// last-seen version wins while the item keeps its first position.
func NewSnapshot(machine string, ts time.Time, items []Item, hardware map[string]string) *Snapshot {
	return &Snapshot{
		Machine:   machine,
		Timestamp: ts,
		Items:     Dedupe(items),
		Hardware:  HardwareItems(hardware),
	}
}

func Dedupe(items []Item) []Item {
	index := make(map[string]int, len(items))
	out := make([]Item, 0, len(items))

	for _, it := range items {
		if it.Name == "" {
			continue
		}
		if i, ok := index[it.Name]; ok {
			out[i].Version = it.Version
			continue
		}
		index[it.Name] = len(out)
		out = append(out, it)
	}

	return out
}

// HardwareItems turns attribute=value pairs into items ordered by attribute.
func HardwareItems(hardware map[string]string) []Item {
	if len(hardware) == 0 {
		return nil
	}

	keys := make([]string, 0, len(hardware))
	for k, v := range hardware {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	items := make([]Item, 0, len(keys))
	for _, k := range keys {
		items = append(items, Item{Name: k, Version: hardware[k]})
	}
	return items
}

// HardwareLabel is the text handed to identifier generation for one attribute.
func HardwareLabel(i Item) string {
	return i.Name + ": " + i.Version
}
