package vulnscan

import (
	"github.com/kvesta/vulnmap/pkg/cpe"
	"github.com/kvesta/vulnmap/pkg/generator"
	"github.com/kvesta/vulnmap/pkg/vulnlib"

	"github.com/sirupsen/logrus"
)

// Orchestrator decides per item between the caches, identifier generation
// and the vulnerability source. It is the only writer of both caches.
type Orchestrator struct {
	IDs     *cpe.Cache
	Vulns   *vulnlib.Store
	Fetcher vulnlib.Refresher

	// Generator may be nil, items without cached identifiers are then incomplete
	Generator generator.Generator

	Log logrus.FieldLogger

	// Force re-generates identifiers and re-fetches cached vulnerabilities
	Force bool

	// BatchSize splits generation into requests of at most that many labels.
	// 0 sends all labels of a machine and kind in one request.
	BatchSize int
}

type Stats struct {
	Generated int
	Rejected  int
	CacheHits int
	Fetched   int
	NotFound  int
	Failed    int
}

func (s *Stats) Add(o Stats) {
	s.Generated += o.Generated
	s.Rejected += o.Rejected
	s.CacheHits += o.CacheHits
	s.Fetched += o.Fetched
	s.NotFound += o.NotFound
	s.Failed += o.Failed
}

// Result is the merged outcome for one machine and kind.
type Result struct {
	Vulnerabilities map[string][]vulnlib.Record

	// Identifiers maps an item label to its valid identifiers
	Identifiers map[string][]string

	// Incomplete lists labels whose lookup failed this run
	Incomplete []string

	Stats Stats
}

func newResult() *Result {
	return &Result{
		Vulnerabilities: map[string][]vulnlib.Record{},
		Identifiers:     map[string][]string{},
		Incomplete:      []string{},
	}
}

// Merge folds o into r, used to combine software and hardware results.
func (r *Result) Merge(o *Result) {
	if o == nil {
		return
	}
	for id, records := range o.Vulnerabilities {
		r.Vulnerabilities[id] = records
	}
	for label, ids := range o.Identifiers {
		r.Identifiers[label] = ids
	}
	r.Incomplete = appendUnique(r.Incomplete, o.Incomplete...)
	r.Stats.Add(o.Stats)
}
