package badges

import "github.com/ashita-ai/kiroku/internal/model"

// Builtin is the badge set shipped with the service. Providers may report
// badges outside this set; those fall back to embedded or default definitions.
var Builtin = []model.BadgeDefinition{
	{
		BadgeID:        "distance_total",
		Name:           "Total distance",
		Unit:           "km",
		IsMultiLevel:   true,
		Thresholds:     []float64{50, 100, 300, 1000, 3000},
		PointsPerLevel: []int{1, 1, 2, 3, 5},
	},
	{
		BadgeID:        "distance_single",
		Name:           "Longest flight",
		Unit:           "km",
		IsMultiLevel:   true,
		Thresholds:     []float64{25, 50, 100, 200, 300},
		PointsPerLevel: []int{1, 1, 2, 3, 4},
	},
	{
		BadgeID:        "altitude_gain",
		Name:           "Height gain",
		Unit:           "m",
		IsMultiLevel:   true,
		Thresholds:     []float64{1000, 2000, 3000, 4000},
		PointsPerLevel: []int{1, 1, 2, 3},
	},
	{
		BadgeID:        "airtime",
		Name:           "Airtime",
		Unit:           "h",
		IsMultiLevel:   true,
		Thresholds:     []float64{10, 50, 100, 250},
		PointsPerLevel: []int{1, 1, 2, 3},
	},
	{
		BadgeID:        "speed_triangle",
		Name:           "Triangle speed",
		Unit:           "km/h",
		IsMultiLevel:   true,
		Thresholds:     []float64{15, 20, 25, 30},
		PointsPerLevel: []int{1, 2, 2, 3},
	},
	{
		BadgeID:        "first_flight",
		Name:           "First flight",
		IsMultiLevel:   false,
		Thresholds:     []float64{1},
		PointsPerLevel: []int{1},
	},
	{
		BadgeID:        "closed_triangle",
		Name:           "Closed FAI triangle",
		IsMultiLevel:   false,
		Thresholds:     []float64{1},
		PointsPerLevel: []int{1},
	},
}

// DefaultCatalog returns a catalog of the builtin badges.
func DefaultCatalog() *Catalog {
	return NewCatalog(Builtin...)
}
