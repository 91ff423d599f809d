package vulnlib

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Refresher is the part of the fetcher used to refresh cached entries.
type Refresher interface {
	Fetch(ctx context.Context, cpe string) ([]Record, error)
	Updated(ctx context.Context, cpe string, since time.Time) (bool, error)
}

// Sync re-fetches the identifier when the source reports changes since it
// was last fetched. Source failures keep the stale entry and are only logged,
// except NotFound which is returned so the caller can retire the identifier.
// Any other returned error is a cache I/O failure.
func (s *Store) Sync(ctx context.Context, cpe string, r Refresher, log logrus.FieldLogger) (bool, error) {
	last, ok, err := s.LastFetched(cpe)
	if err != nil {
		return false, err
	}

	log = log.WithField("cpe", cpe)

	if ok {
		updated, err := r.Updated(ctx, cpe, last)
		if KindOf(err) == KindNotFound {
			return false, err
		}
		if err != nil {
			log.Warnf("Cannot check for updates, keeping cached entry: %v", err)
			return false, nil
		}
		if !updated {
			return false, nil
		}
	}

	records, err := r.Fetch(ctx, cpe)
	if KindOf(err) == KindNotFound {
		return false, err
	}
	if err != nil {
		log.Warnf("Refresh failed, keeping cached entry: %v", err)
		return false, nil
	}

	if err := s.Put(cpe, records); err != nil {
		return false, err
	}

	log.Debugf("Refreshed %d records", len(records))
	return true, nil
}
