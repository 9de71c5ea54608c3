package provision

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kilianp07/provision/core/logger"
	"github.com/kilianp07/provision/core/model"
)

type needKey struct {
	group, situation, service string
}

// Catalog is the validated reference data: needs and the infrastructure
// mapping of service types.
type Catalog struct {
	needs      map[needKey]model.Need
	infra      map[string]model.Infrastructure
	groups     []string
	situations []string
	services   []string
	relevant   map[string][]string
}

// NewCatalog validates the reference rows. Every need must reference a
// service type present in infra, and (group, situation, service) triples
// must be unique.
func NewCatalog(needs []model.Need, infra []model.Infrastructure) (*Catalog, error) {
	c := &Catalog{
		needs:    make(map[needKey]model.Need, len(needs)),
		infra:    make(map[string]model.Infrastructure, len(infra)),
		relevant: make(map[string][]string),
	}
	var errs []error
	for _, in := range infra {
		if in.ServiceType == "" {
			errs = append(errs, errors.New("infrastructure row without service type"))
			continue
		}
		if _, dup := c.infra[in.ServiceType]; dup {
			errs = append(errs, fmt.Errorf("duplicate infrastructure for service type %q", in.ServiceType))
			continue
		}
		c.infra[in.ServiceType] = in
		c.services = append(c.services, in.ServiceType)
	}

	groups := map[string]bool{}
	situations := map[string]bool{}
	relevant := map[string]map[string]bool{}
	for _, n := range needs {
		switch {
		case n.SocialGroup == "" || n.LivingSituation == "" || n.ServiceType == "":
			errs = append(errs, fmt.Errorf("need row with empty identifier: %+v", n))
			continue
		case n.WalkingMinutes < 0 || n.TransitMinutes < 0 || n.CarMinutes < 0:
			errs = append(errs, fmt.Errorf("need %s/%s/%s: negative minutes", n.SocialGroup, n.LivingSituation, n.ServiceType))
			continue
		case n.Intensity < 0 || n.Intensity > 10 || n.Significance < 0:
			errs = append(errs, fmt.Errorf("need %s/%s/%s: intensity or significance out of range", n.SocialGroup, n.LivingSituation, n.ServiceType))
			continue
		}
		if _, ok := c.infra[n.ServiceType]; !ok {
			errs = append(errs, fmt.Errorf("need %s/%s: %w %q", n.SocialGroup, n.LivingSituation, ErrUnknownServiceType, n.ServiceType))
			continue
		}
		k := needKey{n.SocialGroup, n.LivingSituation, n.ServiceType}
		if _, dup := c.needs[k]; dup {
			errs = append(errs, fmt.Errorf("duplicate need %s/%s/%s", n.SocialGroup, n.LivingSituation, n.ServiceType))
			continue
		}
		c.needs[k] = n
		groups[n.SocialGroup] = true
		situations[n.LivingSituation] = true
		if relevant[n.ServiceType] == nil {
			relevant[n.ServiceType] = map[string]bool{}
		}
		relevant[n.ServiceType][n.SocialGroup] = true
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid reference data: %w", err)
	}
	c.groups = keys(groups)
	c.situations = keys(situations)
	sort.Strings(c.services)
	for st, g := range relevant {
		c.relevant[st] = keys(g)
	}
	return c, nil
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Need returns the need row for the triple.
func (c *Catalog) Need(group, situation, service string) (model.Need, bool) {
	n, ok := c.needs[needKey{group, situation, service}]
	return n, ok
}

// SocialGroups returns every group with at least one need, sorted.
func (c *Catalog) SocialGroups() []string { return append([]string(nil), c.groups...) }

// LivingSituations returns every living situation with at least one need, sorted.
func (c *Catalog) LivingSituations() []string { return append([]string(nil), c.situations...) }

// ServiceTypes returns every service type of the infrastructure mapping, sorted.
func (c *Catalog) ServiceTypes() []string { return append([]string(nil), c.services...) }

// Infrastructure returns the mapping row of a service type.
func (c *Catalog) Infrastructure(service string) (model.Infrastructure, bool) {
	in, ok := c.infra[service]
	return in, ok
}

// RelevantGroups returns the groups having a need row for service.
func (c *Catalog) RelevantGroups(service string) []string { return c.relevant[service] }

func (c *Catalog) hasGroup(g string) bool     { return contains(c.groups, g) }
func (c *Catalog) hasSituation(s string) bool { return contains(c.situations, s) }

func contains(sorted []string, v string) bool {
	i := sort.SearchStrings(sorted, v)
	return i < len(sorted) && sorted[i] == v
}

// FilterSocialGroups drops groups unknown to the catalog.
func (c *Catalog) FilterSocialGroups(agg model.SocialGroupAggregate, log logger.Logger) model.SocialGroupAggregate {
	out := make(model.SocialGroupAggregate, len(agg))
	for g, v := range agg {
		if !c.hasGroup(g) {
			logger.OrNop(log).Debugw("ignoring unknown social group", map[string]any{"social_group": g})
			continue
		}
		out[g] = v
	}
	return out
}

// FilterServices drops service types unknown to the catalog.
func (c *Catalog) FilterServices(agg model.ServiceAggregate, log logger.Logger) model.ServiceAggregate {
	out := make(model.ServiceAggregate, len(agg))
	for st, v := range agg {
		if _, ok := c.infra[st]; !ok {
			logger.OrNop(log).Debugw("ignoring unknown service type", map[string]any{"service_type": st})
			continue
		}
		out[st] = v
	}
	return out
}
