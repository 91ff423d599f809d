package delta

import (
	"strings"

	"github.com/kvesta/vulnmap/pkg/inventory"

	version2 "github.com/hashicorp/go-version"
	rpmversion "github.com/knqyf263/go-rpm-version"
	"k8s.io/apimachinery/pkg/util/sets"
)

type BumpKind string

const (
	BumpMajor     BumpKind = "major"
	BumpMinor     BumpKind = "minor"
	BumpPatch     BumpKind = "patch"
	BumpDowngrade BumpKind = "downgrade"
	BumpOther     BumpKind = "other"
)

type VersionChange struct {
	Name string
	From string
	To   string
	Kind BumpKind
}

type Result struct {
	New       []inventory.Item
	Removed   []inventory.Item
	Unchanged []inventory.Item

	// Changes is the version-bumped subset of New
	Changes []VersionChange
}

// Detect compares two snapshots of the same machine by item name.
// A nil previous snapshot makes every current item new.
func Detect(previous, current *inventory.Snapshot) Result {
	var prevItems, curItems []inventory.Item
	if previous != nil {
		prevItems = previous.Items
	}
	if current != nil {
		curItems = current.Items
	}
	return Items(prevItems, curItems)
}

// Hardware compares only the hardware attributes of two snapshots.
func Hardware(previous, current *inventory.Snapshot) Result {
	var prevItems, curItems []inventory.Item
	if previous != nil {
		prevItems = previous.Hardware
	}
	if current != nil {
		curItems = current.Hardware
	}
	return Items(prevItems, curItems)
}

func Items(previous, current []inventory.Item) Result {
	res := Result{
		New:       []inventory.Item{},
		Removed:   []inventory.Item{},
		Unchanged: []inventory.Item{},
	}

	prev := make(map[string]string, len(previous))
	for _, it := range previous {
		prev[it.Name] = it.Version
	}

	curNames := sets.New[string]()
	for _, it := range current {
		curNames.Insert(it.Name)

		v, ok := prev[it.Name]
		switch {
		case !ok:
			res.New = append(res.New, it)
		case v != it.Version:
			res.New = append(res.New, it)
			res.Changes = append(res.Changes, VersionChange{
				Name: it.Name,
				From: v,
				To:   it.Version,
				Kind: Classify(v, it.Version),
			})
		default:
			res.Unchanged = append(res.Unchanged, it)
		}
	}

	for _, it := range previous {
		if !curNames.Has(it.Name) {
			res.Removed = append(res.Removed, it)
		}
	}

	return res
}

// Classify reports how a version moved. Semantic versions are compared
// segment by segment, distro versions fall back to rpm ordering.
func Classify(from, to string) BumpKind {
	fv, ferr := version2.NewVersion(stripEpoch(from))
	tv, terr := version2.NewVersion(stripEpoch(to))

	if ferr == nil && terr == nil {
		if tv.LessThan(fv) {
			return BumpDowngrade
		}

		fs, ts := fv.Segments(), tv.Segments()
		switch {
		case fs[0] != ts[0]:
			return BumpMajor
		case fs[1] != ts[1]:
			return BumpMinor
		case fs[2] != ts[2]:
			return BumpPatch
		}
		return BumpOther
	}

	if rpmversion.NewVersion(to).LessThan(rpmversion.NewVersion(from)) {
		return BumpDowngrade
	}
	return BumpOther
}

func stripEpoch(v string) string {
	if i := strings.Index(v, ":"); i > -1 {
		return v[i+1:]
	}
	return v
}
