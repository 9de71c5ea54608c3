package provision

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/provision/core/model"
)

func TestNewCatalog(t *testing.T) {
	c, err := NewCatalog([]model.Need{
		{SocialGroup: "B", LivingSituation: "L", ServiceType: "S", WalkingMinutes: 5, Intensity: 3, Significance: 1},
		{SocialGroup: "A", LivingSituation: "L", ServiceType: "S", WalkingMinutes: 5, Intensity: 3, Significance: 1},
		{SocialGroup: "A", LivingSituation: "W", ServiceType: "T", CarMinutes: 5, Intensity: 3, Significance: 1},
	}, []model.Infrastructure{
		{Infrastructure: "health", Function: "care", ServiceType: "S"},
		{Infrastructure: "education", Function: "learn", ServiceType: "T"},
		{Infrastructure: "sport", Function: "leisure", ServiceType: "U"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, c.SocialGroups())
	assert.Equal(t, []string{"L", "W"}, c.LivingSituations())
	assert.Equal(t, []string{"S", "T", "U"}, c.ServiceTypes())
	assert.Equal(t, []string{"A", "B"}, c.RelevantGroups("S"))
	assert.Equal(t, []string{"A"}, c.RelevantGroups("T"))
	assert.Empty(t, c.RelevantGroups("U"))

	n, ok := c.Need("A", "W", "T")
	require.True(t, ok)
	assert.Equal(t, 5, n.CarMinutes)

	filtered := c.FilterSocialGroups(model.SocialGroupAggregate{"A": 1, "Z": 9}, nil)
	assert.Equal(t, model.SocialGroupAggregate{"A": 1}, filtered)
	svc := c.FilterServices(model.ServiceAggregate{"S": {Count: 1}, "X": {Count: 2}}, nil)
	assert.Len(t, svc, 1)
}

func TestNewCatalog_Rejects(t *testing.T) {
	infra := []model.Infrastructure{{ServiceType: "S"}}
	_, err := NewCatalog([]model.Need{{SocialGroup: "A", LivingSituation: "L", ServiceType: "X", WalkingMinutes: 1}}, infra)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownServiceType))

	_, err = NewCatalog([]model.Need{
		{SocialGroup: "A", LivingSituation: "L", ServiceType: "S"},
		{SocialGroup: "A", LivingSituation: "L", ServiceType: "S"},
	}, infra)
	assert.ErrorContains(t, err, "duplicate need")

	_, err = NewCatalog(nil, []model.Infrastructure{{ServiceType: "S"}, {ServiceType: "S"}})
	assert.ErrorContains(t, err, "duplicate infrastructure")

	_, err = NewCatalog([]model.Need{{SocialGroup: "A", LivingSituation: "L", ServiceType: "S", Intensity: 11}}, infra)
	assert.ErrorContains(t, err, "out of range")
}
