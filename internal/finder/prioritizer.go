package finder

import (
	"context"
	"sort"

	"github.com/renku-io/event-log/internal/domain"
)

// LeastOccupiedFirst is the default Prioritizer: projects with fewer
// in-flight events are dispatched first, ties broken by the most recent
// latest_event_date, which keeps one busy project from starving its
// peers while still favoring fresh activity.
type LeastOccupiedFirst struct{}

func (LeastOccupiedFirst) Prioritize(_ context.Context, candidates []domain.ProjectInfo, _ int) []domain.ProjectPriority {
	ranked := make([]domain.ProjectInfo, len(candidates))
	copy(ranked, candidates)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].CurrentOccupancy != ranked[j].CurrentOccupancy {
			return ranked[i].CurrentOccupancy < ranked[j].CurrentOccupancy
		}
		return ranked[i].LatestEventDate.After(ranked[j].LatestEventDate)
	})

	out := make([]domain.ProjectPriority, len(ranked))
	for i, p := range ranked {
		out[i] = domain.ProjectPriority{ProjectID: p.ProjectID, Rank: i}
	}
	return out
}
