package provision

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/provision/core/events"
	"github.com/kilianp07/provision/core/logger"
	"github.com/kilianp07/provision/core/metrics"
	"github.com/kilianp07/provision/core/model"
	"github.com/kilianp07/provision/core/provision/history"
	"github.com/kilianp07/provision/core/territory"
	"github.com/kilianp07/provision/internal/eventbus"
)

// Target designates the unit to score, by id or by name.
type Target struct {
	Level model.Level `json:"level"`
	ID    int64       `json:"id,omitempty"`
	Name  string      `json:"name,omitempty"`
}

func (t Target) String() string {
	if t.Name != "" {
		return t.Level.String() + "/" + t.Name
	}
	return t.Level.String() + "/" + strconv.FormatInt(t.ID, 10)
}

// Query selects the target and optionally narrows the triples evaluated.
type Query struct {
	Target          Target
	SocialGroup     string
	LivingSituation string
	ServiceType     string
	Debug           bool
}

// ModeTrace details one travel mode of a triple.
type ModeTrace struct {
	Mode       model.Mode  `json:"mode"`
	Minutes    int         `json:"minutes"`
	Level      model.Level `json:"level"`
	UnitID     int64       `json:"unit_id"`
	Population int         `json:"population"`
	Resource   float64     `json:"resource"`
	Balance    float64     `json:"balance"`
	Reweighted float64     `json:"reweighted"`
}

// Trace details one evaluated triple.
type Trace struct {
	SocialGroup     string      `json:"social_group"`
	LivingSituation string      `json:"living_situation"`
	ServiceType     string      `json:"service_type"`
	Intensity       float64     `json:"intensity"`
	Significance    float64     `json:"significance"`
	Modes           []ModeTrace `json:"modes"`
	Combined        float64     `json:"combined"`
	Loyalty         float64     `json:"loyalty"`
}

// Result is the outcome of an aggregation.
type Result struct {
	RunID              string     `json:"run_id"`
	Target             model.Unit `json:"target"`
	Loyalty            float64    `json:"loyalty"`
	AlternativeLoyalty float64    `json:"alternative_loyalty"`
	Calculations       int        `json:"calculations"`
	Debug              []Trace    `json:"debug,omitempty"`
}

// Engine computes provision scores.
type Engine struct {
	catalog *Catalog
	store   *territory.Store
	log     logger.Logger
	sink    metrics.MetricsSink
	bus     eventbus.EventBus
	history history.LogStore
	now     func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

func WithLogger(l logger.Logger) Option { return func(e *Engine) { e.log = logger.OrNop(l) } }

// WithMetrics records every aggregation on sink.
func WithMetrics(sink metrics.MetricsSink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithBus publishes a ScoreEvent per aggregation.
func WithBus(bus eventbus.EventBus) Option { return func(e *Engine) { e.bus = bus } }

// WithHistory appends a record per aggregation.
func WithHistory(h history.LogStore) Option {
	return func(e *Engine) {
		if h != nil {
			e.history = h
		}
	}
}

// NewEngine creates an Engine.
func NewEngine(c *Catalog, store *territory.Store, opts ...Option) (*Engine, error) {
	if c == nil || store == nil {
		return nil, errors.New("provision: catalog and store are required")
	}
	e := &Engine{
		catalog: c,
		store:   store,
		log:     logger.NopLogger{},
		sink:    metrics.NopSink{},
		history: history.NopStore{},
		now:     time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Catalog returns the reference data used by the engine.
func (e *Engine) Catalog() *Catalog { return e.catalog }

type groupAcc struct {
	min, sum float64
	n        int
}

// Aggregate scores the target unit. Unknown identifiers fail with an
// *InputError; triples without an applicable need are skipped.
func (e *Engine) Aggregate(ctx context.Context, q Query) (Result, error) {
	start := e.now()
	unit, err := e.resolveTarget(ctx, q.Target)
	if err != nil {
		return Result{}, err
	}
	groups, situations, services, err := e.scope(q)
	if err != nil {
		return Result{}, err
	}
	ln, err := e.store.Repository().Lineage(ctx, unit)
	if err != nil {
		return Result{}, fmt.Errorf("lineage of %s: %w", unit.Key(), err)
	}

	ev := &evaluation{e: e, target: unit, lineage: ln,
		groups: map[string]model.SocialGroupAggregate{}, services: map[string]model.ServiceAggregate{}}
	res := Result{RunID: uuid.NewString(), Target: unit}
	acc := map[string]*groupAcc{}
	for _, g := range groups {
		for _, ls := range situations {
			for _, st := range services {
				need, ok := e.catalog.Need(g, ls, st)
				if !ok || need.Inapplicable() {
					continue
				}
				tr, err := ev.triple(ctx, need)
				if err != nil {
					return Result{}, err
				}
				res.Calculations++
				if q.Debug {
					res.Debug = append(res.Debug, tr)
				}
				a := acc[g]
				if a == nil {
					a = &groupAcc{min: tr.Loyalty}
					acc[g] = a
				}
				a.min = min(a.min, tr.Loyalty)
				a.sum += tr.Loyalty
				a.n++
			}
		}
	}

	if len(acc) > 0 {
		pop, err := ev.socialGroups(ctx, unit)
		if err != nil {
			return Result{}, err
		}
		res.Loyalty, res.AlternativeLoyalty = combineGroups(acc, pop)
	}
	res.Loyalty = Round4(res.Loyalty)
	res.AlternativeLoyalty = Round4(res.AlternativeLoyalty)
	e.report(ctx, q, res, e.now().Sub(start))
	return res, nil
}

// combineGroups weights group results by population. Without population
// the groups count equally.
func combineGroups(acc map[string]*groupAcc, pop model.SocialGroupAggregate) (loyalty, alternative float64) {
	names := make([]string, 0, len(acc))
	for g := range acc {
		names = append(names, g)
	}
	sort.Strings(names)
	mins := make([]float64, len(names))
	means := make([]float64, len(names))
	weights := make([]float64, len(names))
	for i, g := range names {
		a := acc[g]
		mins[i] = a.min
		means[i] = a.sum / float64(a.n)
		weights[i] = float64(pop[g])
	}
	if len(names) == 1 {
		return mins[0], means[0]
	}
	if floats.Sum(weights) == 0 {
		weights = nil
	}
	return stat.Mean(mins, weights), stat.Mean(means, weights)
}

func (e *Engine) resolveTarget(ctx context.Context, t Target) (model.Unit, error) {
	switch t.Level {
	case model.LevelBlock, model.LevelMunicipality, model.LevelDistrict:
	default:
		return model.Unit{}, inputError("target", t.String(), ErrInvalidTarget)
	}
	repo := e.store.Repository()
	var (
		u   model.Unit
		err error
	)
	if t.Name != "" {
		u, err = repo.UnitByName(ctx, t.Level, t.Name)
	} else {
		u, err = repo.Unit(ctx, t.Level, t.ID)
	}
	if errors.Is(err, territory.ErrUnitNotFound) {
		return model.Unit{}, inputError("target", t.String(), ErrInvalidTarget)
	}
	if err != nil {
		return model.Unit{}, fmt.Errorf("resolve target %s: %w", t, err)
	}
	return u, nil
}

func (e *Engine) scope(q Query) (groups, situations, services []string, err error) {
	groups = e.catalog.SocialGroups()
	if q.SocialGroup != "" {
		if !e.catalog.hasGroup(q.SocialGroup) {
			return nil, nil, nil, inputError("social_group", q.SocialGroup, ErrUnknownSocialGroup)
		}
		groups = []string{q.SocialGroup}
	}
	situations = e.catalog.LivingSituations()
	if q.LivingSituation != "" {
		if !e.catalog.hasSituation(q.LivingSituation) {
			return nil, nil, nil, inputError("living_situation", q.LivingSituation, ErrUnknownLivingSituation)
		}
		situations = []string{q.LivingSituation}
	}
	services = e.catalog.ServiceTypes()
	if q.ServiceType != "" {
		if _, ok := e.catalog.Infrastructure(q.ServiceType); !ok {
			return nil, nil, nil, inputError("service_type", q.ServiceType, ErrUnknownServiceType)
		}
		services = []string{q.ServiceType}
	}
	return groups, situations, services, nil
}

func (e *Engine) report(ctx context.Context, q Query, res Result, d time.Duration) {
	now := e.now()
	e.log.Debugw("aggregation completed", map[string]any{
		"run_id": res.RunID, "target": res.Target.Key(), "loyalty": res.Loyalty,
		"alternative_loyalty": res.AlternativeLoyalty, "calculations": res.Calculations, "duration": d.String(),
	})
	if err := e.sink.RecordAggregation(metrics.AggregationEvent{
		Target: res.Target, SocialGroup: q.SocialGroup, LivingSituation: q.LivingSituation, ServiceType: q.ServiceType,
		Loyalty: res.Loyalty, AlternativeLoyalty: res.AlternativeLoyalty, Calculations: res.Calculations,
		Duration: d, Time: now,
	}); err != nil {
		e.log.Warnw("record aggregation metrics", map[string]any{"error": err.Error()})
	}
	if e.bus != nil {
		e.bus.Publish(events.ScoreEvent{
			RunID: res.RunID, Target: res.Target, SocialGroup: q.SocialGroup, LivingSituation: q.LivingSituation,
			ServiceType: q.ServiceType, Loyalty: res.Loyalty, AlternativeLoyalty: res.AlternativeLoyalty,
			Calculations: res.Calculations, Time: now,
		})
	}
	if err := e.history.Append(ctx, history.Record{
		RunID: res.RunID, Timestamp: now, Target: res.Target, SocialGroup: q.SocialGroup,
		LivingSituation: q.LivingSituation, ServiceType: q.ServiceType, Loyalty: res.Loyalty,
		AlternativeLoyalty: res.AlternativeLoyalty, Calculations: res.Calculations, Duration: d,
	}); err != nil {
		e.log.Warnw("append aggregation history", map[string]any{"run_id": res.RunID, "error": err.Error()})
	}
}

// evaluation caches the aggregates read during one Aggregate call.
type evaluation struct {
	e        *Engine
	target   model.Unit
	lineage  model.Lineage
	groups   map[string]model.SocialGroupAggregate
	services map[string]model.ServiceAggregate
}

func (ev *evaluation) socialGroups(ctx context.Context, u model.Unit) (model.SocialGroupAggregate, error) {
	if agg, ok := ev.groups[u.Key()]; ok {
		return agg, nil
	}
	agg, err := ev.e.store.SocialGroups(ctx, u, false)
	if err != nil {
		return nil, err
	}
	agg = ev.e.catalog.FilterSocialGroups(agg, ev.e.log)
	ev.groups[u.Key()] = agg
	return agg, nil
}

func (ev *evaluation) serviceStats(ctx context.Context, u model.Unit) (model.ServiceAggregate, error) {
	if agg, ok := ev.services[u.Key()]; ok {
		return agg, nil
	}
	agg, err := ev.e.store.Services(ctx, u, false)
	if err != nil {
		return nil, err
	}
	agg = ev.e.catalog.FilterServices(agg, ev.e.log)
	ev.services[u.Key()] = agg
	return agg, nil
}

// triple evaluates one applicable need. The fallback level of a mode is
// never finer than the target level.
func (ev *evaluation) triple(ctx context.Context, need model.Need) (Trace, error) {
	tr := Trace{
		SocialGroup:     need.SocialGroup,
		LivingSituation: need.LivingSituation,
		ServiceType:     need.ServiceType,
		Intensity:       need.Intensity / 10,
		Significance:    need.Significance,
	}
	relevant := ev.e.catalog.RelevantGroups(need.ServiceType)
	values := make([]float64, 0, len(model.Modes))
	for _, m := range model.Modes {
		minutes := need.Minutes(m)
		if minutes == 0 {
			continue
		}
		lvl := FallbackLevel(m, minutes)
		if lvl < ev.target.Level {
			lvl = ev.target.Level
		}
		u := ev.lineage.At(lvl)
		groups, err := ev.socialGroups(ctx, u)
		if err != nil {
			return tr, err
		}
		services, err := ev.serviceStats(ctx, u)
		if err != nil {
			return tr, err
		}
		mt := ModeTrace{
			Mode:       m,
			Minutes:    minutes,
			Level:      u.Level,
			UnitID:     u.ID,
			Population: groups.Sum(relevant),
			Resource:   services[need.ServiceType].Resource,
		}
		mt.Balance = Balance(mt.Resource, mt.Population)
		mt.Reweighted = Reweight(mt.Balance, tr.Intensity)
		values = append(values, mt.Reweighted)
		tr.Modes = append(tr.Modes, mt)
	}
	tr.Combined = Combine(values)
	tr.Loyalty = tr.Combined * tr.Significance
	return tr, nil
}
