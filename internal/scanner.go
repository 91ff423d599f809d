package internal

import (
	"context"
	"io"

	scanerr "github.com/kvesta/vulnmap/internal/errors"
	"github.com/kvesta/vulnmap/internal/report"
	"github.com/kvesta/vulnmap/internal/vulnscan"
	"github.com/kvesta/vulnmap/pkg/delta"
	"github.com/kvesta/vulnmap/pkg/generator"
	"github.com/kvesta/vulnmap/pkg/inventory"

	"github.com/sirupsen/logrus"
)

// Collector acquires the current snapshot of one machine.
type Collector interface {
	Collect(ctx context.Context, m inventory.Machine) (*inventory.Snapshot, error)
}

// Scanner runs the per-machine pipeline: acquire, diff, look up, report.
type Scanner struct {
	CacheDir  string
	Collector Collector
	Snapshots *inventory.Store
	Lookup    *vulnscan.Orchestrator
	Log       logrus.FieldLogger
	Out       io.Writer
}

// Run processes machines sequentially. A failing machine is logged and
// skipped; only persistence failures and cancellation stop the run.
func (s *Scanner) Run(ctx context.Context, machines []inventory.Machine) (*report.Summary, error) {
	summary := &report.Summary{}

	for _, m := range machines {
		log := s.Log.WithField("machine", m.Name)

		if !m.IsLinux() {
			log.Warnf("Skipping %s machine, only linux targets are supported", m.Type)
			summary.Skip(m.Name)
			continue
		}

		rep, stats, err := s.scanMachine(ctx, m, log)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			if scanerr.IsFatal(err) {
				return summary, err
			}

			log.Errorf("Skipping machine: %v", err)
			summary.Skip(m.Name)
			continue
		}

		summary.Add(rep, stats)
	}

	return summary, nil
}

func (s *Scanner) scanMachine(ctx context.Context, m inventory.Machine, log logrus.FieldLogger) (*report.MachineReport, vulnscan.Stats, error) {
	log.Infof("Acquiring inventory over %s", m.Source)

	snap, err := s.Collector.Collect(ctx, m)
	if err != nil {
		return nil, vulnscan.Stats{}, scanerr.Acquisition(m.Name, err)
	}

	prev, err := s.Snapshots.Load(m.Name)
	if err != nil {
		log.Warnf("Ignoring unreadable previous snapshot: %v", err)
		prev = nil
	}

	software := delta.Detect(prev, snap)
	hardware := delta.Hardware(prev, snap)
	logDelta(log, prev == nil, software)

	// the previous snapshot is superseded as soon as the current one is known
	if err := s.Snapshots.Save(snap); err != nil {
		return nil, vulnscan.Stats{}, scanerr.Persistence("save snapshot", err).WithMachine(m.Name)
	}

	// all generation for the machine happens before the first lookup
	plans := make([]*vulnscan.Plan, 0, 2)
	for _, step := range []struct {
		d    delta.Result
		kind generator.Kind
	}{
		{software, generator.Software},
		{hardware, generator.Hardware},
	} {
		p, err := s.Lookup.Generate(ctx, m.Name, step.d, step.kind)
		if err != nil {
			return nil, vulnscan.Stats{}, err
		}
		plans = append(plans, p)
	}

	var res *vulnscan.Result
	for _, p := range plans {
		r, err := s.Lookup.Fetch(ctx, p)
		if err != nil {
			return nil, vulnscan.Stats{}, err
		}
		if res == nil {
			res = r
			continue
		}
		res.Merge(r)
	}

	rep, err := s.finish(m.Name, snap, res)
	if err != nil {
		return nil, vulnscan.Stats{}, err
	}

	return rep, res.Stats, nil
}

// ReportOnly rebuilds the reports of machines from the stored snapshots and
// the caches without contacting any target or external service.
func (s *Scanner) ReportOnly(machines []inventory.Machine) (*report.Summary, error) {
	summary := &report.Summary{}

	for _, m := range machines {
		log := s.Log.WithField("machine", m.Name)

		snap, err := s.Snapshots.Load(m.Name)
		if err != nil || snap == nil {
			log.Warnf("No stored snapshot, skipping (%v)", err)
			summary.Skip(m.Name)
			continue
		}

		res, err := s.Lookup.FromCache(snap.Items, generator.Software)
		if err != nil {
			return summary, err
		}
		hw, err := s.Lookup.FromCache(snap.Hardware, generator.Hardware)
		if err != nil {
			return summary, err
		}
		res.Merge(hw)

		rep := report.New(m.Name, snap.Timestamp, res)
		if _, err := report.Save(s.CacheDir, rep); err != nil {
			return summary, scanerr.Persistence("save report", err).WithMachine(m.Name)
		}
		report.ResolveMachineData(s.Out, rep)

		summary.Add(rep, res.Stats)
	}

	return summary, nil
}

// finish persists everything produced for the machine and prints its table.
func (s *Scanner) finish(machine string, snap *inventory.Snapshot, res *vulnscan.Result) (*report.MachineReport, error) {
	if err := s.Snapshots.SaveIdentifiers(machine, snap.Timestamp, res.Identifiers); err != nil {
		return nil, scanerr.Persistence("save identifiers", err).WithMachine(machine)
	}

	rep := report.New(machine, snap.Timestamp, res)
	path, err := report.Save(s.CacheDir, rep)
	if err != nil {
		return nil, scanerr.Persistence("save report", err).WithMachine(machine)
	}

	if err := s.Lookup.Save(); err != nil {
		return nil, err
	}

	report.ResolveMachineData(s.Out, rep)
	s.Log.WithField("machine", machine).Infof("Report is saved in: %s", path)

	return rep, nil
}

func logDelta(log logrus.FieldLogger, first bool, d delta.Result) {
	if first {
		log.Infof("First scan, %d items", len(d.New))
		return
	}

	log.WithFields(logrus.Fields{
		"new":       len(d.New),
		"removed":   len(d.Removed),
		"unchanged": len(d.Unchanged),
	}).Info("Inventory delta")

	for _, c := range d.Changes {
		log.WithFields(logrus.Fields{"item": c.Name, "bump": c.Kind}).
			Debugf("Version changed %s -> %s", c.From, c.To)
	}
}
