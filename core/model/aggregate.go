package model

// Facility is a raw service point with its ordinal capacity class.
type Facility struct {
	ID          int64  `json:"id"`
	ServiceType string `json:"service_type"`
	Capacity    int    `json:"capacity"`
}

// capacityPopulation maps an ordinal capacity class to the population a
// facility of that class is expected to serve.
var capacityPopulation = [...]float64{0, 250, 500, 1000, 2000, 3000, 5000, 7500, 10000, 15000, 20000}

// CapacityResource converts an ordinal capacity class into an estimated
// served population. Classes above the table saturate at the last bucket.
func CapacityResource(class int) float64 {
	if class <= 0 {
		return 0
	}
	if class >= len(capacityPopulation) {
		return capacityPopulation[len(capacityPopulation)-1]
	}
	return capacityPopulation[class]
}

// SocialGroupAggregate is the population of a unit split by social group.
type SocialGroupAggregate map[string]int

// Total returns the population over all groups.
func (a SocialGroupAggregate) Total() int {
	t := 0
	for _, v := range a {
		t += v
	}
	return t
}

// Sum returns the population restricted to the given groups.
func (a SocialGroupAggregate) Sum(groups []string) int {
	t := 0
	for _, g := range groups {
		t += a[g]
	}
	return t
}

// Add accumulates o into a.
func (a SocialGroupAggregate) Add(o SocialGroupAggregate) {
	for k, v := range o {
		a[k] += v
	}
}

// ServiceStats aggregates the facilities of one service type.
type ServiceStats struct {
	Count    int     `json:"count"`
	Capacity int     `json:"capacity"`
	Resource float64 `json:"resource"`
}

// ServiceAggregate maps service types to their facility statistics.
type ServiceAggregate map[string]ServiceStats

// AddFacility accounts for one facility.
func (a ServiceAggregate) AddFacility(f Facility) {
	s := a[f.ServiceType]
	s.Count++
	s.Capacity += f.Capacity
	s.Resource += CapacityResource(f.Capacity)
	a[f.ServiceType] = s
}

// Add accumulates o into a.
func (a ServiceAggregate) Add(o ServiceAggregate) {
	for k, v := range o {
		s := a[k]
		s.Count += v.Count
		s.Capacity += v.Capacity
		s.Resource += v.Resource
		a[k] = s
	}
}
