package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrNoFinishedRun is returned when no completed simulation run matches a scenario.
var ErrNoFinishedRun = errors.New("db: no finished simulation run")

const latestRunQuery = `
SELECT db_name
FROM public.drt_simulation_runs
WHERE scenario ILIKE '%' || $1 || '%'
  AND finished_at IS NOT NULL
  AND COALESCE(db_name, '') <> ''
ORDER BY finished_at DESC
LIMIT 1`

// ResolveLatestRunDBName looks up, in the cluster's run registry, the database
// holding the events of the newest completed run of a scenario. Runs without
// finished_at are ignored.
func ResolveLatestRunDBName(ctx context.Context, registry *sql.DB, scenario string) (string, error) {
	scenario = strings.TrimSpace(scenario)
	if scenario == "" {
		return "", errors.New("db: empty scenario name")
	}
	var name string
	err := registry.QueryRowContext(ctx, latestRunQuery, scenario).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w for scenario %q", ErrNoFinishedRun, scenario)
	}
	if err != nil {
		return "", fmt.Errorf("query drt_simulation_runs: %w", err)
	}
	return name, nil
}
