package delta

import (
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/kvesta/vulnmap/pkg/inventory"

	"github.com/stretchr/testify/assert"
	"k8s.io/apimachinery/pkg/util/sets"
)

func snap(items ...inventory.Item) *inventory.Snapshot {
	return inventory.NewSnapshot("m", time.Now(), items, nil)
}

func TestDetect(t *testing.T) {
	nginx18 := inventory.Item{Name: "nginx", Version: "1.18.0"}
	nginx20 := inventory.Item{Name: "nginx", Version: "1.20.0"}
	curl := inventory.Item{Name: "curl", Version: "7.68.0"}
	zlib := inventory.Item{Name: "zlib1g", Version: "1:1.2.11.dfsg-2"}

	tests := []struct {
		name          string
		prev          *inventory.Snapshot
		cur           *inventory.Snapshot
		wantNew       []inventory.Item
		wantRemoved   []inventory.Item
		wantUnchanged []inventory.Item
	}{
		{
			name:          "first run",
			prev:          nil,
			cur:           snap(nginx18, curl),
			wantNew:       []inventory.Item{nginx18, curl},
			wantRemoved:   []inventory.Item{},
			wantUnchanged: []inventory.Item{},
		},
		{
			name:          "version bump is new not removed",
			prev:          snap(nginx18),
			cur:           snap(nginx20, curl),
			wantNew:       []inventory.Item{nginx20, curl},
			wantRemoved:   []inventory.Item{},
			wantUnchanged: []inventory.Item{},
		},
		{
			name:          "removed and unchanged",
			prev:          snap(nginx18, zlib, curl),
			cur:           snap(curl, nginx18),
			wantNew:       []inventory.Item{},
			wantRemoved:   []inventory.Item{zlib},
			wantUnchanged: []inventory.Item{curl, nginx18},
		},
		{
			name:          "empty current",
			prev:          snap(curl),
			cur:           snap(),
			wantNew:       []inventory.Item{},
			wantRemoved:   []inventory.Item{curl},
			wantUnchanged: []inventory.Item{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(tt.prev, tt.cur)
			assert.Equal(t, tt.wantNew, got.New)
			assert.Equal(t, tt.wantRemoved, got.Removed)
			assert.Equal(t, tt.wantUnchanged, got.Unchanged)
		})
	}
}

func TestDetectChanges(t *testing.T) {
	got := Detect(
		snap(inventory.Item{Name: "nginx", Version: "1.18.0"}),
		snap(inventory.Item{Name: "nginx", Version: "1.20.0"}),
	)

	assert.Equal(t, []VersionChange{{Name: "nginx", From: "1.18.0", To: "1.20.0", Kind: BumpMinor}}, got.Changes)
}

// New and Unchanged together cover exactly the current names,
// Removed covers exactly the previous names missing from current.
func TestDetectCoverage(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	randomItems := func() []inventory.Item {
		var items []inventory.Item
		for i := 0; i < r.Intn(20); i++ {
			items = append(items, inventory.Item{
				Name:    "pkg" + strconv.Itoa(r.Intn(15)),
				Version: strconv.Itoa(r.Intn(3)),
			})
		}
		return items
	}

	names := func(items []inventory.Item) sets.Set[string] {
		s := sets.New[string]()
		for _, it := range items {
			s.Insert(it.Name)
		}
		return s
	}

	for i := 0; i < 200; i++ {
		prev, cur := snap(randomItems()...), snap(randomItems()...)
		got := Detect(prev, cur)

		covered := names(got.New).Union(names(got.Unchanged))
		assert.True(t, covered.Equal(names(cur.Items)))
		assert.Len(t, cur.Items, len(got.New)+len(got.Unchanged))
		assert.Empty(t, names(got.New).Intersection(names(got.Unchanged)))

		wantRemoved := names(prev.Items).Difference(names(cur.Items))
		assert.True(t, names(got.Removed).Equal(wantRemoved))
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		from, to string
		want     BumpKind
	}{
		{"1.18.0", "1.20.0", BumpMinor},
		{"1.18.0", "1.18.1", BumpPatch},
		{"1.18.0", "2.0.0", BumpMajor},
		{"1.20.0", "1.18.0", BumpDowngrade},
		{"1:1.2.11", "1:1.2.13", BumpPatch},
		{"7.68.0-1ubuntu2.7", "7.68.0-1ubuntu2.8", BumpOther},
		{"2.17-326.el7_9", "2.17-317.el7", BumpDowngrade},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.from, tt.to))
		})
	}
}
