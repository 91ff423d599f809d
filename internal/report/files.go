package report

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/kvesta/vulnmap/internal/storage"
	"github.com/kvesta/vulnmap/internal/vulnscan"
	"github.com/kvesta/vulnmap/pkg/vulnlib"

	"k8s.io/apimachinery/pkg/util/json"
)

const reportFile = "vulnerability_report.json"

// MachineReport is the per-machine result written after every run.
// An identifier that resolved appears with its, possibly empty, record list.
type MachineReport struct {
	Machine         string                      `json:"machine"`
	Timestamp       time.Time                   `json:"timestamp"`
	Vulnerabilities map[string][]vulnlib.Record `json:"vulnerabilities"`
	Incomplete      []string                    `json:"incomplete"`

	Identifiers map[string][]string `json:"-"`
}

func New(machine string, ts time.Time, res *vulnscan.Result) *MachineReport {
	r := &MachineReport{
		Machine:         machine,
		Timestamp:       ts,
		Vulnerabilities: map[string][]vulnlib.Record{},
		Incomplete:      []string{},
		Identifiers:     map[string][]string{},
	}
	if res == nil {
		return r
	}

	for id, records := range res.Vulnerabilities {
		if records == nil {
			records = []vulnlib.Record{}
		}
		r.Vulnerabilities[id] = records
	}
	for label, ids := range res.Identifiers {
		r.Identifiers[label] = ids
	}
	r.Incomplete = append(r.Incomplete, res.Incomplete...)

	return r
}

// Count is the number of distinct vulnerability ids in the report.
func (r *MachineReport) Count() int {
	seen := map[string]struct{}{}
	for _, records := range r.Vulnerabilities {
		for _, rec := range records {
			seen[rec.ID] = struct{}{}
		}
	}
	return len(seen)
}

func Path(cacheDir, machine string) string {
	return filepath.Join(cacheDir, "machines", machine, reportFile)
}

// Save replaces the report of the machine under cacheDir.
func Save(cacheDir string, r *MachineReport) (string, error) {
	filename := Path(cacheDir, r.Machine)

	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}

	if err := storage.WriteFile(filename, data, 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	return filename, nil
}

// Load reads the last report of the machine, nil when there is none.
func Load(cacheDir, machine string) (*MachineReport, error) {
	data, err := storage.ReadFile(Path(cacheDir, machine))
	if err != nil || data == nil {
		return nil, err
	}

	r := &MachineReport{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}

	return r, nil
}
