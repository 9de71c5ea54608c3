package provision

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/provision/core/events"
	"github.com/kilianp07/provision/core/model"
	"github.com/kilianp07/provision/core/provision/history"
	"github.com/kilianp07/provision/core/territory"
	"github.com/kilianp07/provision/internal/eventbus"
)

var (
	block1 = model.Unit{ID: 1, Level: model.LevelBlock, Name: "b1", ParentID: 10}
	block2 = model.Unit{ID: 2, Level: model.LevelBlock, Name: "b2", ParentID: 10}
	muni10 = model.Unit{ID: 10, Level: model.LevelMunicipality, Name: "m10", ParentID: 100}
	dist   = model.Unit{ID: 100, Level: model.LevelDistrict, Name: "d100"}
)

// seed stores aggregates directly so tests control populations and resources.
func seed(t *testing.T, repo *territory.MemoryRepository, u model.Unit, groups model.SocialGroupAggregate, services model.ServiceAggregate) {
	t.Helper()
	require.NoError(t, repo.SaveSocialGroups(context.Background(), u, groups))
	require.NoError(t, repo.SaveServices(context.Background(), u, services))
}

func hierarchy() *territory.MemoryRepository {
	repo := territory.NewMemoryRepository()
	for _, u := range []model.Unit{dist, muni10, block1, block2} {
		repo.AddUnit(u, nil)
	}
	return repo
}

func newEngine(t *testing.T, repo territory.Repository, needs []model.Need, opts ...Option) *Engine {
	t.Helper()
	cat, err := NewCatalog(needs, []model.Infrastructure{
		{Infrastructure: "health", Function: "care", ServiceType: "S"},
		{Infrastructure: "education", Function: "learn", ServiceType: "T"},
	})
	require.NoError(t, err)
	e, err := NewEngine(cat, territory.NewStore(repo, territory.NewCityCache()), opts...)
	require.NoError(t, err)
	return e
}

func TestAggregate_EndToEnd(t *testing.T) {
	repo := territory.NewMemoryRepository()
	block := model.Unit{ID: 7, Level: model.LevelBlock, Name: "solo"}
	repo.AddUnit(block, nil)
	seed(t, repo, block, model.SocialGroupAggregate{"A": 100}, model.ServiceAggregate{"S": {Count: 1, Resource: 50}})
	e := newEngine(t, repo, []model.Need{
		{SocialGroup: "A", LivingSituation: "L", ServiceType: "S", WalkingMinutes: 8, Intensity: 6, Significance: 5},
	})

	res, err := e.Aggregate(context.Background(), Query{
		Target: Target{Level: model.LevelBlock, ID: 7}, SocialGroup: "A", LivingSituation: "L", ServiceType: "S",
	})
	require.NoError(t, err)
	want := math.Round(5*math.Pow(0.5, 1.6)/math.Pow(5, 0.6)*1e4) / 1e4
	assert.Equal(t, want, res.Loyalty)
	assert.Equal(t, want, res.AlternativeLoyalty)
	assert.Equal(t, 1, res.Calculations)
	assert.NotEmpty(t, res.RunID)
	assert.Nil(t, res.Debug)
}

func TestAggregate_ZeroPopulationIsFullyServed(t *testing.T) {
	repo := hierarchy()
	seed(t, repo, block1, model.SocialGroupAggregate{}, model.ServiceAggregate{"S": {Count: 3, Resource: 9000}})
	e := newEngine(t, repo, []model.Need{
		{SocialGroup: "A", LivingSituation: "L", ServiceType: "S", WalkingMinutes: 5, Intensity: 8, Significance: 1},
	})
	res, err := e.Aggregate(context.Background(), Query{Target: Target{Level: model.LevelBlock, ID: 1}, Debug: true})
	require.NoError(t, err)
	require.Len(t, res.Debug, 1)
	assert.Equal(t, 1.0, res.Debug[0].Modes[0].Balance)
	assert.InDelta(t, 1/math.Pow(5, 0.8), res.Debug[0].Combined, 1e-12)
}

func TestAggregate_WalkingOnlyPassesThrough(t *testing.T) {
	repo := hierarchy()
	seed(t, repo, block1, model.SocialGroupAggregate{"A": 200}, model.ServiceAggregate{"S": {Resource: 300}})
	e := newEngine(t, repo, []model.Need{
		{SocialGroup: "A", LivingSituation: "L", ServiceType: "S", WalkingMinutes: 10, Intensity: 4, Significance: 1},
	})
	res, err := e.Aggregate(context.Background(), Query{Target: Target{Level: model.LevelBlock, ID: 1}, Debug: true})
	require.NoError(t, err)
	tr := res.Debug[0]
	require.Len(t, tr.Modes, 1)
	assert.Equal(t, model.ModeWalking, tr.Modes[0].Mode)
	assert.Equal(t, 1.5, tr.Modes[0].Balance)
	assert.Equal(t, tr.Modes[0].Reweighted, tr.Combined)
	assert.InDelta(t, 7.5, tr.Combined, 1e-12, "intensity below 0.5 multiplies by 5")
}

func TestAggregate_HighIntensityCurve(t *testing.T) {
	repo := hierarchy()
	seed(t, repo, block1, model.SocialGroupAggregate{"A": 100}, model.ServiceAggregate{"S": {Resource: 30}})
	e := newEngine(t, repo, []model.Need{
		{SocialGroup: "A", LivingSituation: "L", ServiceType: "S", WalkingMinutes: 10, Intensity: 8, Significance: 1},
	})
	res, err := e.Aggregate(context.Background(), Query{Target: Target{Level: model.LevelBlock, ID: 1}})
	require.NoError(t, err)
	assert.InDelta(t, math.Pow(0.3, 1.8)/math.Pow(5, 0.8), res.Loyalty, 1e-4)
}

func TestAggregate_ThreeModesUseFallbackLevels(t *testing.T) {
	repo := hierarchy()
	seed(t, repo, block1, model.SocialGroupAggregate{"A": 10}, model.ServiceAggregate{"S": {Resource: 10}})
	seed(t, repo, block2, model.SocialGroupAggregate{"A": 10}, model.ServiceAggregate{})
	seed(t, repo, muni10, model.SocialGroupAggregate{"A": 20}, model.ServiceAggregate{"S": {Resource: 10}})
	seed(t, repo, dist, model.SocialGroupAggregate{"A": 40}, model.ServiceAggregate{"S": {Resource: 10}})
	e := newEngine(t, repo, []model.Need{
		{SocialGroup: "A", LivingSituation: "L", ServiceType: "S", WalkingMinutes: 15, TransitMinutes: 15, CarMinutes: 30, Intensity: 2, Significance: 1},
	})
	res, err := e.Aggregate(context.Background(), Query{Target: Target{Level: model.LevelBlock, ID: 1}, Debug: true})
	require.NoError(t, err)
	modes := res.Debug[0].Modes
	require.Len(t, modes, 3)
	assert.Equal(t, model.LevelMunicipality, modes[0].Level)
	assert.Equal(t, int64(10), modes[0].UnitID)
	assert.Equal(t, model.LevelDistrict, modes[1].Level)
	assert.Equal(t, model.LevelCity, modes[2].Level)

	// city = district 100 only, computed from the stored district aggregate
	walk, transit, car := 5*0.5, 5*0.25, 5*0.25
	assert.InDelta(t, 0.5*walk+0.3*transit+0.2*car, res.Debug[0].Combined, 1e-12)
}

func TestAggregate_FallbackNeverFinerThanTarget(t *testing.T) {
	repo := hierarchy()
	seed(t, repo, muni10, model.SocialGroupAggregate{"A": 100}, model.ServiceAggregate{"S": {Resource: 25}})
	e := newEngine(t, repo, []model.Need{
		{SocialGroup: "A", LivingSituation: "L", ServiceType: "S", WalkingMinutes: 5, Intensity: 1, Significance: 1},
	})
	res, err := e.Aggregate(context.Background(), Query{Target: Target{Level: model.LevelMunicipality, Name: "m10"}, Debug: true})
	require.NoError(t, err)
	assert.Equal(t, model.LevelMunicipality, res.Debug[0].Modes[0].Level)
	assert.InDelta(t, 1.25, res.Loyalty, 1e-12)
}

func TestAggregate_GroupsWeightedByPopulation(t *testing.T) {
	repo := hierarchy()
	seed(t, repo, block1, model.SocialGroupAggregate{"A": 100, "B": 300, "Z": 1000}, model.ServiceAggregate{"S": {Resource: 200}})
	e := newEngine(t, repo, []model.Need{
		{SocialGroup: "A", LivingSituation: "L", ServiceType: "S", WalkingMinutes: 8, Intensity: 6, Significance: 5},
		{SocialGroup: "B", LivingSituation: "L", ServiceType: "S", WalkingMinutes: 8, Intensity: 2, Significance: 1},
		{SocialGroup: "B", LivingSituation: "W", ServiceType: "S", WalkingMinutes: 8, Intensity: 2, Significance: 0.5},
	})
	res, err := e.Aggregate(context.Background(), Query{Target: Target{Level: model.LevelBlock, ID: 1}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Calculations)

	// unknown group Z is ignored; balance = 200 / (100 + 300)
	la := 5 * math.Pow(0.5, 1.6) / math.Pow(5, 0.6)
	bMin, bMean := 2.5*0.5, (2.5+1.25)/2
	assert.InDelta(t, (100*la+300*bMin)/400, res.Loyalty, 1e-4)
	assert.InDelta(t, (100*la+300*bMean)/400, res.AlternativeLoyalty, 1e-4)
}

func TestAggregate_UnweightedWithoutPopulation(t *testing.T) {
	repo := hierarchy()
	seed(t, repo, block1, model.SocialGroupAggregate{}, model.ServiceAggregate{})
	e := newEngine(t, repo, []model.Need{
		{SocialGroup: "A", LivingSituation: "L", ServiceType: "S", WalkingMinutes: 8, Intensity: 2, Significance: 1},
		{SocialGroup: "B", LivingSituation: "L", ServiceType: "S", WalkingMinutes: 8, Intensity: 2, Significance: 0.5},
	})
	res, err := e.Aggregate(context.Background(), Query{Target: Target{Level: model.LevelBlock, ID: 1}})
	require.NoError(t, err)
	assert.InDelta(t, (5+2.5)/2.0, res.Loyalty, 1e-12)
}

func TestAggregate_SkipsInapplicableNeeds(t *testing.T) {
	repo := hierarchy()
	seed(t, repo, block1, model.SocialGroupAggregate{"A": 10}, model.ServiceAggregate{"S": {Resource: 10}})
	e := newEngine(t, repo, []model.Need{
		{SocialGroup: "A", LivingSituation: "L", ServiceType: "S", Intensity: 5, Significance: 1},
		{SocialGroup: "A", LivingSituation: "W", ServiceType: "S", WalkingMinutes: 5, Intensity: 0, Significance: 1},
		{SocialGroup: "A", LivingSituation: "X", ServiceType: "S", WalkingMinutes: 5, Intensity: 5, Significance: 0},
	})
	res, err := e.Aggregate(context.Background(), Query{Target: Target{Level: model.LevelBlock, ID: 1}})
	require.NoError(t, err)
	assert.Zero(t, res.Calculations)
	assert.Zero(t, res.Loyalty)
	assert.Zero(t, res.AlternativeLoyalty)
}

func TestAggregate_InputErrors(t *testing.T) {
	repo := hierarchy()
	e := newEngine(t, repo, []model.Need{
		{SocialGroup: "A", LivingSituation: "L", ServiceType: "S", WalkingMinutes: 5, Intensity: 5, Significance: 1},
	})
	ctx := context.Background()
	cases := []struct {
		name string
		q    Query
		want error
	}{
		{"unknown block", Query{Target: Target{Level: model.LevelBlock, ID: 999}}, ErrInvalidTarget},
		{"unknown name", Query{Target: Target{Level: model.LevelDistrict, Name: "nowhere"}}, ErrInvalidTarget},
		{"city target", Query{Target: Target{Level: model.LevelCity}}, ErrInvalidTarget},
		{"house target", Query{Target: Target{Level: model.LevelHouse, ID: 1}}, ErrInvalidTarget},
		{"unknown service", Query{Target: Target{Level: model.LevelBlock, ID: 1}, ServiceType: "X"}, ErrUnknownServiceType},
		{"unknown group", Query{Target: Target{Level: model.LevelBlock, ID: 1}, SocialGroup: "Q"}, ErrUnknownSocialGroup},
		{"unknown situation", Query{Target: Target{Level: model.LevelBlock, ID: 1}, LivingSituation: "Q"}, ErrUnknownLivingSituation},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := e.Aggregate(ctx, c.q)
			require.Error(t, err)
			assert.True(t, errors.Is(err, c.want), "got %v", err)
			assert.True(t, IsInputError(err))
		})
	}
}

type memHistory struct {
	mu   sync.Mutex
	recs []history.Record
}

func (m *memHistory) Append(_ context.Context, r history.Record) error {
	m.mu.Lock()
	m.recs = append(m.recs, r)
	m.mu.Unlock()
	return nil
}
func (m *memHistory) Query(context.Context, history.Query) ([]history.Record, error) { return m.recs, nil }
func (m *memHistory) Close() error                                                  { return nil }

func TestAggregate_ReportsRun(t *testing.T) {
	repo := hierarchy()
	seed(t, repo, block1, model.SocialGroupAggregate{"A": 100}, model.ServiceAggregate{"S": {Resource: 50}})
	bus := eventbus.New()
	defer bus.Close()
	sub := bus.Subscribe()
	h := &memHistory{}
	e := newEngine(t, repo, []model.Need{
		{SocialGroup: "A", LivingSituation: "L", ServiceType: "S", WalkingMinutes: 5, Intensity: 4, Significance: 1},
	}, WithBus(bus), WithHistory(h))

	res, err := e.Aggregate(context.Background(), Query{Target: Target{Level: model.LevelBlock, ID: 1}, ServiceType: "S"})
	require.NoError(t, err)

	require.Len(t, h.recs, 1)
	assert.Equal(t, res.RunID, h.recs[0].RunID)
	assert.Equal(t, "S", h.recs[0].ServiceType)
	select {
	case ev := <-sub:
		se, ok := ev.(events.ScoreEvent)
		require.True(t, ok)
		assert.Equal(t, res.Loyalty, se.Loyalty)
	case <-time.After(time.Second):
		t.Fatal("no score event")
	}
}

func TestAggregateLevel(t *testing.T) {
	repo := hierarchy()
	seed(t, repo, block1, model.SocialGroupAggregate{"A": 100}, model.ServiceAggregate{"S": {Resource: 50}})
	seed(t, repo, block2, model.SocialGroupAggregate{"A": 100}, model.ServiceAggregate{"S": {Resource: 100}})
	e := newEngine(t, repo, []model.Need{
		{SocialGroup: "A", LivingSituation: "L", ServiceType: "S", WalkingMinutes: 5, Intensity: 4, Significance: 1},
	})
	out, err := e.AggregateLevel(context.Background(), model.LevelBlock, Query{}, BatchConfig{Workers: 2})
	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	assert.Empty(t, out.Failures)
	assert.Equal(t, int64(1), out.Results[0].Target.ID)
	assert.InDelta(t, 2.5, out.Results[0].Loyalty, 1e-12)
	assert.InDelta(t, 5.0, out.Results[1].Loyalty, 1e-12)

	_, err = e.AggregateLevel(context.Background(), model.LevelCity, Query{}, BatchConfig{})
	assert.ErrorIs(t, err, ErrInvalidTarget)
}
