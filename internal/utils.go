package internal

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/kvesta/vulnmap/config"
	scanerr "github.com/kvesta/vulnmap/internal/errors"
	"github.com/kvesta/vulnmap/internal/report"
	"github.com/kvesta/vulnmap/internal/vulnscan"
	"github.com/kvesta/vulnmap/pkg/cpe"
	"github.com/kvesta/vulnmap/pkg/generator"
	"github.com/kvesta/vulnmap/pkg/inspector"
	"github.com/kvesta/vulnmap/pkg/inventory"
	"github.com/kvesta/vulnmap/pkg/vulnlib"

	"github.com/sirupsen/logrus"
)

// preflightCPE is known to the NVD and has records, used to check connectivity
const preflightCPE = "cpe:2.3:a:apache:log4j:2.14.1:*:*:*:*:*:*:*"

type Options struct {
	Inventory string
	Source    string

	FlushCache    bool
	ForceCheck    bool
	ReportOnly    bool
	Sync          bool
	SkipPreflight bool

	Out io.Writer
}

// Session holds the caches and clients of one run. Close releases the
// vulnerability cache handle.
type Session struct {
	Cfg     *config.Config
	Log     logrus.FieldLogger
	Lookup  *vulnscan.Orchestrator
	Fetcher *vulnlib.Fetcher
}

func CpeCachePath(cfg *config.Config) string {
	return filepath.Join(cfg.Cache.Dir, "cpe_cache.json")
}

func VulnCachePath(cfg *config.Config) string {
	return filepath.Join(cfg.Cache.Dir, "vulnerability_cache.db")
}

// OpenSession loads both caches before any external call is made.
func OpenSession(cfg *config.Config, log logrus.FieldLogger) (*Session, error) {
	ids, err := cpe.Load(CpeCachePath(cfg))
	if err != nil {
		return nil, scanerr.Persistence("load identifier cache", err)
	}

	db, err := vulnlib.OpenDB(VulnCachePath(cfg))
	if err != nil {
		return nil, scanerr.Persistence("open vulnerability cache", err)
	}
	store, err := vulnlib.NewStore(db)
	if err != nil {
		db.Close()
		return nil, scanerr.Persistence("open vulnerability cache", err)
	}

	client := vulnlib.NewClient(cfg.NVD.BaseURL, cfg.NVD.APIKey, cfg.NVD.Timeout)
	fetcher := vulnlib.NewFetcher(client, cfg.NVD, log)

	o := &vulnscan.Orchestrator{
		IDs:     ids,
		Vulns:   store,
		Fetcher: fetcher,
		Log:     log,

		BatchSize: cfg.Claude.BatchSize,
	}

	if cfg.HasGenerator() {
		gen, err := generator.NewClaudeGenerator(cfg.Claude)
		if err != nil {
			store.Close()
			return nil, scanerr.Configuration("identifier generator", err)
		}
		o.Generator = gen
	} else {
		log.Warn("No Anthropic API key configured, only cached identifiers are used")
	}

	return &Session{Cfg: cfg, Log: log, Lookup: o, Fetcher: fetcher}, nil
}

func (s *Session) Close() error {
	return s.Lookup.Vulns.Close()
}

// Preflight checks that the vulnerability source answers with a known identifier.
func (s *Session) Preflight(ctx context.Context) error {
	s.Log.Info("Checking vulnerability source connectivity")

	records, err := s.Fetcher.Fetch(ctx, preflightCPE)
	if err != nil {
		return scanerr.New(scanerr.ErrorTypeUnavailable, "preflight", err).WithIdentifier(preflightCPE)
	}

	s.Log.Debugf("Preflight returned %d records", len(records))
	return nil
}

// Flush clears both caches and persists the empty identifier cache.
func (s *Session) Flush() error {
	s.Log.Info("Flushing identifier and vulnerability caches")

	if err := s.Lookup.Flush(); err != nil {
		return err
	}
	return s.Lookup.Save()
}

func (s *Session) Sync(ctx context.Context) (int, error) {
	n, err := s.Lookup.Sync(ctx, s.Cfg.NVD.SyncWindow)
	if err != nil {
		return n, err
	}
	// identifiers retired during the sync
	return n, s.Lookup.Save()
}

// DoScan runs a whole scan over the machines of the inventory file.
func DoScan(ctx context.Context, cfg *config.Config, opts Options, log logrus.FieldLogger) (*report.Summary, error) {
	path := opts.Inventory
	if path == "" {
		path = cfg.Inventory.Path
	}
	source := opts.Source
	if source == "" {
		source = cfg.Inventory.Source
	}

	machines, err := inventory.LoadMachines(path, source)
	if err != nil {
		return nil, scanerr.Configuration("load inventory", err)
	}
	log.Infof("Loaded %d machines from %s", len(machines), path)

	sess, err := OpenSession(cfg, log)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	sess.Lookup.Force = opts.ForceCheck

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	scanner := &Scanner{
		CacheDir:  cfg.Cache.Dir,
		Collector: inspector.NewCollector(cfg, log),
		Snapshots: inventory.NewStore(cfg.Cache.Dir),
		Lookup:    sess.Lookup,
		Log:       log,
		Out:       out,
	}

	if opts.ReportOnly {
		return scanner.ReportOnly(machines)
	}

	if opts.FlushCache {
		if err := sess.Flush(); err != nil {
			return nil, err
		}
	}

	if !opts.SkipPreflight {
		if err := sess.Preflight(ctx); err != nil {
			return nil, err
		}
	}

	if opts.Sync {
		n, err := sess.Sync(ctx)
		if err != nil {
			return nil, err
		}
		log.Infof("Refreshed %d cached identifiers", n)
	}

	return scanner.Run(ctx, machines)
}
