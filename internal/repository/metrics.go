package repository

import "github.com/uber-go/tally/v4"

// metrics holds the counters every repository reports.
type metrics struct {
	find           tally.Counter
	count          tally.Counter
	create         tally.Counter
	update         tally.Counter
	updateFastPath tally.Counter
	updateFallback tally.Counter
	delete         tally.Counter
	notFound       tally.Counter
}

func newMetrics(scope tally.Scope, entity string) *metrics {
	scope = scope.Tagged(map[string]string{"entity": entity})
	return &metrics{
		find:           scope.Counter("find"),
		count:          scope.Counter("count"),
		create:         scope.Counter("create"),
		update:         scope.Counter("update"),
		updateFastPath: scope.Counter("update.fast_path"),
		updateFallback: scope.Counter("update.fallback"),
		delete:         scope.Counter("delete"),
		notFound:       scope.Counter("not_found"),
	}
}
