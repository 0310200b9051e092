package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/libmanage/internal/countries"
)

// CountryRefresher reloads the cached country list from upstream.
type CountryRefresher interface {
	Refresh(ctx context.Context) ([]countries.Country, error)
}

// WarmCountryCacheTask fills the country cache so the first publisher form
// does not wait on the upstream API.
type WarmCountryCacheTask struct{}

func (t WarmCountryCacheTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "warm_country_cache",
		MaxAttempts: 3,
		Backoff:     30 * time.Second,
		Timeout:     time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: true,
		},
	}
}

func WarmCountryCacheProcessor(refresher CountryRefresher) backlite.QueueProcessor[WarmCountryCacheTask] {
	return func(ctx context.Context, _ WarmCountryCacheTask) error {
		if refresher == nil {
			return fmt.Errorf("country refresher not configured")
		}
		list, err := refresher.Refresh(ctx)
		if err != nil {
			return fmt.Errorf("warm country cache: %w", err)
		}
		log.Printf("[TASK] Cached %d countries", len(list))
		return nil
	}
}

func NewWarmCountryCacheQueue(refresher CountryRefresher) backlite.Queue {
	return backlite.NewQueue(WarmCountryCacheProcessor(refresher))
}
