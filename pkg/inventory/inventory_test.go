package inventory

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemKey(t *testing.T) {
	assert.Equal(t, "nginx@1.20.0", Item{Name: "nginx", Version: "1.20.0"}.Key())
	assert.Equal(t, "nginx", Item{Name: "nginx"}.Key())
}

func TestDedupe(t *testing.T) {
	tests := []struct {
		name  string
		items []Item
		want  []Item
	}{
		{
			name:  "empty",
			items: nil,
			want:  []Item{},
		},
		{
			name: "last version wins first position kept",
			items: []Item{
				{Name: "nginx", Version: "1.18.0"},
				{Name: "curl", Version: "7.68.0"},
				{Name: "nginx", Version: "1.20.0"},
			},
			want: []Item{
				{Name: "nginx", Version: "1.20.0"},
				{Name: "curl", Version: "7.68.0"},
			},
		},
		{
			name:  "unnamed items dropped",
			items: []Item{{Name: "", Version: "1"}, {Name: "zlib", Version: "1.2"}},
			want:  []Item{{Name: "zlib", Version: "1.2"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Dedupe(tt.items); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Dedupe() got = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHardwareItems(t *testing.T) {
	got := HardwareItems(map[string]string{
		"product_name": "PowerEdge R740",
		"model_name":   "Intel(R) Xeon(R) Gold 6130",
		"bios_version": "",
	})

	assert.Equal(t, []Item{
		{Name: "model_name", Version: "Intel(R) Xeon(R) Gold 6130"},
		{Name: "product_name", Version: "PowerEdge R740"},
	}, got)
	assert.Nil(t, HardwareItems(nil))
}

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	prev, err := s.Load("web-1")
	require.NoError(t, err)
	assert.Nil(t, prev, "first run has no previous snapshot")

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	snap := NewSnapshot("web-1", ts, []Item{{Name: "nginx", Version: "1.18.0"}}, map[string]string{"vendor": "Dell Inc."})
	require.NoError(t, s.Save(snap))

	got, err := s.Load("web-1")
	require.NoError(t, err)
	assert.Equal(t, snap.Items, got.Items)
	assert.Equal(t, snap.Hardware, got.Hardware)
	assert.True(t, ts.Equal(got.Timestamp))

	snap2 := NewSnapshot("web-1", ts.Add(time.Hour), []Item{{Name: "curl", Version: "7.68.0"}}, nil)
	require.NoError(t, s.Save(snap2))

	got, err = s.Load("web-1")
	require.NoError(t, err)
	assert.Equal(t, []Item{{Name: "curl", Version: "7.68.0"}}, got.Items, "snapshots are superseded, not merged")
}

func TestStoreCorrupt(t *testing.T) {
	s := NewStore(t.TempDir())
	dir := s.MachineDir("db-1")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, snapshotFile), []byte("{not json"), 0644))

	_, err := s.Load("db-1")
	assert.Error(t, err)
}

func TestStoreIdentifiers(t *testing.T) {
	s := NewStore(t.TempDir())
	ids := map[string][]string{"nginx@1.20.0": {"cpe:2.3:a:nginx:nginx:1.20.0:*:*:*:*:*:*:*"}}

	require.NoError(t, s.SaveIdentifiers("web-1", time.Now(), ids))

	got, err := s.LoadIdentifiers("web-1")
	require.NoError(t, err)
	assert.Equal(t, ids, got)

	got, err = s.LoadIdentifiers("unknown")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseMachines(t *testing.T) {
	data := []byte(`
machines:
  - name: web-1
    host: 10.0.0.5
    user: root
    key_file: ~/.ssh/id_rsa
  - name: app
    source: docker
  - name: api
    source: kubernetes
    pod: api-0
  - name: win-1
    type: windows
    host: 10.0.0.9
`)

	machines, err := ParseMachines(data, "")
	require.NoError(t, err)
	require.Len(t, machines, 4)

	assert.Equal(t, SourceSSH, machines[0].Source)
	assert.Equal(t, 22, machines[0].Port)
	assert.Equal(t, "app", machines[1].Container)
	assert.Equal(t, "default", machines[2].Namespace)
	assert.True(t, machines[0].IsLinux())
	assert.False(t, machines[3].IsLinux())
}

func TestParseMachinesErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "no name", data: "machines:\n  - user: root\n"},
		{name: "duplicate", data: "machines:\n  - name: a\n    host: h\n  - name: a\n    host: h\n"},
		{name: "unknown source", data: "machines:\n  - name: a\n    source: telnet\n"},
		{name: "pod missing", data: "machines:\n  - name: a\n    source: kubernetes\n"},
		{name: "bad yaml", data: "machines: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMachines([]byte(tt.data), "")
			assert.Error(t, err)
		})
	}
}

func TestParseMachinesOverride(t *testing.T) {
	machines, err := ParseMachines([]byte("machines:\n  - name: a\n  - name: b\n"), SourceLocal)
	require.NoError(t, err)
	for _, m := range machines {
		assert.Equal(t, SourceLocal, m.Source)
	}
}
