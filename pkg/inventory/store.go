package inventory

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/kvesta/vulnmap/internal/storage"

	"k8s.io/apimachinery/pkg/util/json"
)

const (
	machinesDir     = "machines"
	snapshotFile    = "snapshot.json"
	identifiersFile = "identifiers.json"
)

// Store keeps one snapshot per machine under <dir>/machines/<machine>.
type Store struct {
	Dir string
}

func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

func (s *Store) MachineDir(machine string) string {
	return filepath.Join(s.Dir, machinesDir, machine)
}

// Load returns the previously persisted snapshot, or nil on the first run.
func (s *Store) Load(machine string) (*Snapshot, error) {
	data, err := storage.ReadFile(filepath.Join(s.MachineDir(machine), snapshotFile))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	snap := &Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("corrupt snapshot for %s: %w", machine, err)
	}

	return snap, nil
}

// Save supersedes the stored snapshot of the machine.
func (s *Store) Save(snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return storage.WriteFile(filepath.Join(s.MachineDir(snap.Machine), snapshotFile), data, 0644)
}

type identifierFile struct {
	Machine     string              `json:"machine"`
	Timestamp   time.Time           `json:"timestamp"`
	Identifiers map[string][]string `json:"identifiers"`
}

// SaveIdentifiers records which identifiers each item of the machine resolved to.
func (s *Store) SaveIdentifiers(machine string, ts time.Time, ids map[string][]string) error {
	data, err := json.Marshal(identifierFile{Machine: machine, Timestamp: ts, Identifiers: ids})
	if err != nil {
		return err
	}
	return storage.WriteFile(filepath.Join(s.MachineDir(machine), identifiersFile), data, 0644)
}

func (s *Store) LoadIdentifiers(machine string) (map[string][]string, error) {
	data, err := storage.ReadFile(filepath.Join(s.MachineDir(machine), identifiersFile))
	if err != nil || data == nil {
		return nil, err
	}

	f := &identifierFile{}
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("corrupt identifier file for %s: %w", machine, err)
	}
	return f.Identifiers, nil
}
