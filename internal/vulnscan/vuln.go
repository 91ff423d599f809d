package vulnscan

import (
	"context"
	"time"

	scanerr "github.com/kvesta/vulnmap/internal/errors"
	"github.com/kvesta/vulnmap/pkg/delta"
	"github.com/kvesta/vulnmap/pkg/generator"
	"github.com/kvesta/vulnmap/pkg/inventory"
	"github.com/kvesta/vulnmap/pkg/vulnlib"

	"github.com/sirupsen/logrus"
)

// Plan holds the identifiers of one machine and kind once generation is done.
type Plan struct {
	Machine string
	Kind    generator.Kind

	labels []string
	failed map[string]bool
	res    *Result
}

// Resolve runs Generate and Fetch back to back for a single kind.
func (o *Orchestrator) Resolve(ctx context.Context, machine string, d delta.Result, kind generator.Kind) (*Result, error) {
	p, err := o.Generate(ctx, machine, d, kind)
	if err != nil {
		return nil, err
	}
	return o.Fetch(ctx, p)
}

// Generate requests identifiers for the current items of d that have none
// cached. Only cancellation is returned; generation failures mark the
// affected items incomplete in the plan.
func (o *Orchestrator) Generate(ctx context.Context, machine string, d delta.Result, kind generator.Kind) (*Plan, error) {
	p := &Plan{Machine: machine, Kind: kind, failed: map[string]bool{}, res: newResult()}
	log := o.Log.WithFields(logrus.Fields{"machine": machine, "kind": kind})

	unchanged := map[string]bool{}
	for _, it := range d.Unchanged {
		unchanged[labelFor(kind, it)] = true
	}

	var pending []string
	for _, it := range append(append([]inventory.Item{}, d.New...), d.Unchanged...) {
		label := labelFor(kind, it)
		p.labels = appendUnique(p.labels, label)

		cached := o.IDs.Lookup(label)
		if len(cached) > 0 && !o.Force {
			if !unchanged[label] {
				log.WithField("item", label).Debug("Reusing identifiers generated earlier")
			}
			continue
		}
		pending = appendUnique(pending, label)
	}

	for _, batch := range chunk(pending, o.BatchSize) {
		if err := o.generate(ctx, machine, batch, kind, p.res, log); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warnf("%v", err)
			for _, label := range batch {
				if len(o.IDs.Lookup(label)) == 0 {
					p.failed[label] = true
				}
			}
		}
	}

	return p, nil
}

// Fetch looks up the vulnerabilities of every valid identifier of p. Only
// cache write failures and cancellation are returned; everything else is
// logged and recorded as incomplete.
func (o *Orchestrator) Fetch(ctx context.Context, p *Plan) (*Result, error) {
	res := p.res
	log := o.Log.WithFields(logrus.Fields{"machine": p.Machine, "kind": p.Kind})

	// identifiers are fetched once even when shared by several items
	owners := map[string][]string{}
	var ids []string
	for _, label := range p.labels {
		for _, id := range o.IDs.Lookup(label) {
			owners[id] = appendUnique(owners[id], label)
			ids = appendUnique(ids, id)
		}
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		records, ok, err := o.lookup(ctx, id, res, log.WithField("cpe", id))
		if err != nil {
			return nil, err
		}
		if !ok {
			for _, label := range owners[id] {
				p.failed[label] = true
			}
			continue
		}
		if records != nil {
			res.Vulnerabilities[id] = records
		}
	}

	for _, label := range p.labels {
		valid := o.IDs.Lookup(label)
		if len(valid) > 0 {
			res.Identifiers[label] = valid
		}
		if p.failed[label] {
			res.Incomplete = append(res.Incomplete, label)
		}
	}

	log.WithFields(logrus.Fields{
		"items":      len(p.labels),
		"generated":  res.Stats.Generated,
		"cache_hits": res.Stats.CacheHits,
		"fetched":    res.Stats.Fetched,
		"not_found":  res.Stats.NotFound,
		"failed":     res.Stats.Failed,
	}).Info("Lookup finished")

	return res, nil
}

func (o *Orchestrator) generate(ctx context.Context, machine string, labels []string, kind generator.Kind, res *Result, log logrus.FieldLogger) error {
	if o.Generator == nil {
		for _, label := range labels {
			if len(o.IDs.Lookup(label)) == 0 {
				log.WithField("item", label).Debug("No identifier generator configured")
			}
		}
		return nil
	}

	log.Infof("Generating identifiers for %d items", len(labels))

	generated, err := o.Generator.Generate(ctx, labels, kind)
	if err != nil {
		return scanerr.IdentifierGeneration(machine, err)
	}

	classified := generator.Classify(generated)
	for label, ids := range classified.Rejected {
		for _, id := range ids {
			log.WithFields(logrus.Fields{"item": label, "cpe": id}).Warn("Rejected malformed identifier")
			o.IDs.MarkInvalid(label, id)
			res.Stats.Rejected++
		}
	}
	for _, label := range labels {
		var fresh []string
		for _, id := range classified.Valid[label] {
			// rejected before under another name
			if o.IDs.Invalid(id) {
				o.IDs.MarkInvalid(label, id)
				continue
			}
			fresh = append(fresh, id)
		}
		// an empty entry still records that generation ran for label
		o.IDs.Store(label, fresh)
	}
	res.Stats.Generated += len(labels)

	return nil
}

// lookup resolves one identifier. ok is false when the identifier could not be
// resolved this run; a nil record list with ok means the id turned out invalid.
func (o *Orchestrator) lookup(ctx context.Context, id string, res *Result, log logrus.FieldLogger) ([]vulnlib.Record, bool, error) {
	cached, found, err := o.Vulns.Get(id)
	if err != nil {
		return nil, false, scanerr.Persistence("read vulnerability cache", err).WithIdentifier(id)
	}
	if found && !o.Force {
		res.Stats.CacheHits++
		return cached, true, nil
	}

	records, err := o.Fetcher.Fetch(ctx, id)
	switch {
	case err == nil:
		if records == nil {
			records = []vulnlib.Record{}
		}
		SortRecords(records)
		if err := o.Vulns.Put(id, records); err != nil {
			return nil, false, scanerr.Persistence("write vulnerability cache", err).WithIdentifier(id)
		}
		res.Stats.Fetched++
		return records, true, nil

	case vulnlib.KindOf(err) == vulnlib.KindNotFound:
		log.Info("Identifier unknown to the vulnerability source, marking invalid")
		o.invalidate(id)
		if err := o.Vulns.Delete(id); err != nil {
			return nil, false, scanerr.Persistence("delete vulnerability cache entry", err).WithIdentifier(id)
		}
		res.Stats.NotFound++
		return nil, true, nil

	case ctx.Err() != nil:
		return nil, false, ctx.Err()
	}

	res.Stats.Failed++
	if found {
		log.Warnf("Refresh failed, using cached entry: %v", err)
		return cached, true, nil
	}

	log.Warnf("Lookup failed: %v", err)
	return nil, false, nil
}

// invalidate marks id invalid under every name that carries it.
func (o *Orchestrator) invalidate(id string) {
	for _, name := range o.IDs.Owners(id) {
		o.IDs.MarkInvalid(name, id)
	}
}

// Sync refreshes the cached entries older than window. Entries for invalid
// identifiers are dropped instead, as are identifiers the source no longer
// knows, which are also marked invalid.
func (o *Orchestrator) Sync(ctx context.Context, window time.Duration) (int, error) {
	stale, err := o.Vulns.Stale(time.Now().Add(-window))
	if err != nil {
		return 0, scanerr.Persistence("list stale entries", err)
	}

	o.Log.Infof("Synchronizing %d cached identifiers", len(stale))

	refreshed := 0
	for _, id := range stale {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}

		if o.IDs.Invalid(id) {
			if err := o.Vulns.Delete(id); err != nil {
				return refreshed, scanerr.Persistence("delete vulnerability cache entry", err).WithIdentifier(id)
			}
			continue
		}

		ok, err := o.Vulns.Sync(ctx, id, o.Fetcher, o.Log)
		if vulnlib.KindOf(err) == vulnlib.KindNotFound {
			o.Log.WithField("cpe", id).Info("Identifier unknown to the vulnerability source, marking invalid")
			o.invalidate(id)
			if err := o.Vulns.Delete(id); err != nil {
				return refreshed, scanerr.Persistence("delete vulnerability cache entry", err).WithIdentifier(id)
			}
			continue
		}
		if err != nil {
			return refreshed, scanerr.Persistence("sync vulnerability cache", err).WithIdentifier(id)
		}
		if ok {
			refreshed++
		}
	}

	return refreshed, nil
}

// FromCache rebuilds a result from the caches only. Items never generated
// or with an identifier missing from the vulnerability cache are incomplete.
func (o *Orchestrator) FromCache(items []inventory.Item, kind generator.Kind) (*Result, error) {
	res := newResult()

	for _, it := range items {
		label := labelFor(kind, it)
		ids := o.IDs.Lookup(label)
		if len(ids) == 0 {
			// never generated, as opposed to generated without result
			if !o.IDs.Has(label) {
				res.Incomplete = appendUnique(res.Incomplete, label)
			}
			continue
		}
		res.Identifiers[label] = ids

		for _, id := range ids {
			records, found, err := o.Vulns.Get(id)
			if err != nil {
				return nil, scanerr.Persistence("read vulnerability cache", err).WithIdentifier(id)
			}
			if !found {
				res.Incomplete = appendUnique(res.Incomplete, label)
				continue
			}
			res.Stats.CacheHits++
			res.Vulnerabilities[id] = records
		}
	}

	return res, nil
}

// Flush empties both caches.
func (o *Orchestrator) Flush() error {
	o.IDs.Flush()
	if err := o.Vulns.Flush(); err != nil {
		return scanerr.Persistence("flush vulnerability cache", err)
	}
	return nil
}

// Save persists the identifier cache. The vulnerability cache is written
// transactionally as entries are fetched.
func (o *Orchestrator) Save() error {
	if err := o.IDs.Save(); err != nil {
		return scanerr.Persistence("save identifier cache", err)
	}
	return nil
}
