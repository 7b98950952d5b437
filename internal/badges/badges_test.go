package badges

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kiroku/internal/model"
)

func kmBadge() model.BadgeDefinition {
	return model.BadgeDefinition{
		BadgeID:        "km",
		IsMultiLevel:   true,
		Thresholds:     []float64{50, 100, 300},
		PointsPerLevel: []int{1, 1, 2},
	}
}

func TestLevelFor(t *testing.T) {
	def := kmBadge()
	tests := []struct {
		value float64
		want  int
	}{
		{0, 0},
		{49.9, 0},
		{50, 1},
		{60, 1},
		{100, 2},
		{150, 2},
		{300, 3},
		{320, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFor(def, tt.value), "value %v", tt.value)
	}
}

func TestPointsBetween(t *testing.T) {
	def := kmBadge()

	assert.Equal(t, 3, PointsBetween(def, 1, 3), "level 1 -> 3 earns levels 2 and 3")
	assert.Equal(t, 0, PointsBetween(def, 2, 2))
	assert.Equal(t, 0, PointsBetween(def, 3, 1), "regression never goes negative")
	assert.Equal(t, 2, PointsBetween(def, 0, 2))
	assert.Equal(t, 4, PointsBetween(def, 0, 10), "upper bound is clamped to defined levels")
	assert.Equal(t, 4, CumulativePoints(def, 3))
}

func TestCatalog_Resolve(t *testing.T) {
	c := NewCatalog(kmBadge())

	t.Run("catalog entry wins", func(t *testing.T) {
		embedded := &model.BadgeDefinition{Thresholds: []float64{1}, PointsPerLevel: []int{9}}
		def := c.Resolve("km", embedded)
		assert.Equal(t, []int{1, 1, 2}, def.PointsPerLevel)
	})

	t.Run("embedded definition for unknown badge", func(t *testing.T) {
		embedded := &model.BadgeDefinition{Thresholds: []float64{10, 20}, PointsPerLevel: []int{1, 3}}
		def := c.Resolve("new-badge", embedded)
		assert.Equal(t, "new-badge", def.BadgeID)
		assert.True(t, def.IsMultiLevel)
		assert.Equal(t, 2, def.Levels())
	})

	t.Run("invalid embedded definition falls back to default", func(t *testing.T) {
		embedded := &model.BadgeDefinition{Thresholds: []float64{20, 10}, PointsPerLevel: []int{1, 1}}
		def := c.Resolve("odd", embedded)
		assert.False(t, def.IsMultiLevel)
		assert.Equal(t, []int{1}, def.PointsPerLevel)
	})

	t.Run("unknown badge defaults to single level one point", func(t *testing.T) {
		def := c.Resolve("mystery", nil)
		assert.False(t, def.IsMultiLevel)
		assert.Equal(t, 1, CumulativePoints(def, LevelFor(def, 1)))
	})
}

func TestNewCatalog_SkipsInvalid(t *testing.T) {
	c := NewCatalog(
		kmBadge(),
		model.BadgeDefinition{BadgeID: "mismatch", Thresholds: []float64{1, 2}, PointsPerLevel: []int{1}},
		model.BadgeDefinition{BadgeID: "", Thresholds: []float64{1}, PointsPerLevel: []int{1}},
	)
	require.Equal(t, 1, c.Len())
	_, ok := c.Get("mismatch")
	assert.False(t, ok)
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	assert.Equal(t, len(Builtin), c.Len(), "every builtin badge must be valid")

	all := c.All()
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].BadgeID, all[i].BadgeID)
	}
}
