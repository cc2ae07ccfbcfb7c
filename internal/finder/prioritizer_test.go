package finder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/renku-io/event-log/internal/domain"
)

func TestLeastOccupiedFirst_ordersByOccupancyThenRecency(t *testing.T) {
	now := time.Now()
	candidates := []domain.ProjectInfo{
		{ProjectID: 1, Slug: "busy", CurrentOccupancy: 3, LatestEventDate: now},
		{ProjectID: 2, Slug: "idle-old", CurrentOccupancy: 0, LatestEventDate: now.Add(-time.Hour)},
		{ProjectID: 3, Slug: "idle-fresh", CurrentOccupancy: 0, LatestEventDate: now},
	}

	got := LeastOccupiedFirst{}.Prioritize(context.Background(), candidates, 3)

	assert.Equal(t, []int64{3, 2, 1}, ids(got))
	// Rank is dense and zero-based, matching "0 is dispatched first".
	assert.Equal(t, 0, got[0].Rank)
	assert.Equal(t, 1, got[1].Rank)
	assert.Equal(t, 2, got[2].Rank)
}

func TestLeastOccupiedFirst_emptyInput(t *testing.T) {
	got := LeastOccupiedFirst{}.Prioritize(context.Background(), nil, 0)
	assert.Empty(t, got)
}

func TestLeastOccupiedFirst_doesNotMutateInput(t *testing.T) {
	candidates := []domain.ProjectInfo{
		{ProjectID: 1, CurrentOccupancy: 5},
		{ProjectID: 2, CurrentOccupancy: 1},
	}
	original := append([]domain.ProjectInfo(nil), candidates...)

	_ = LeastOccupiedFirst{}.Prioritize(context.Background(), candidates, 0)

	assert.Equal(t, original, candidates)
}

func ids(priorities []domain.ProjectPriority) []int64 {
	out := make([]int64, len(priorities))
	for i, p := range priorities {
		out[i] = p.ProjectID
	}
	return out
}
