package ingest

import (
	"context"

	"wxarchive/internal/types"
)

// MarkerStore reads and writes ingestion completion markers.
type MarkerStore interface {
	Get(ctx context.Context, key string) (*types.IngestionMarker, error)
	SetCompleted(ctx context.Context, key string, completed bool) error
}

// ObservationProbe answers whether any observations exist yet.
type ObservationProbe interface {
	HasAny(ctx context.Context) (bool, error)
}

// Guard decides whether an ingestion run needs to execute at all. A
// completed run leaves a marker; a populated store without any marker
// (loaded before the marker table existed) also counts as done. The check
// is not atomic against concurrent runs; one ingestion process at a time is
// assumed.
type Guard struct {
	Markers      MarkerStore
	Observations ObservationProbe
}

// ShouldSkip reports whether the run can be skipped. force always runs.
func (g *Guard) ShouldSkip(ctx context.Context, force bool) (bool, error) {
	if force {
		return false, nil
	}
	marker, err := g.Markers.Get(ctx, types.MarkerIngestV1)
	if err != nil {
		return false, err
	}
	if marker != nil {
		return marker.Completed, nil
	}
	return g.Observations.HasAny(ctx)
}

// MarkComplete records a finished run. Upsert semantics make repeat calls
// harmless.
func (g *Guard) MarkComplete(ctx context.Context) error {
	return g.Markers.SetCompleted(ctx, types.MarkerIngestV1, true)
}
