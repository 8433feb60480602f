package services

import (
	"github.com/shopspring/decimal"

	"github.com/moham7dreza/structured-docs-engine/pkg/models"
)

// gradeThresholds are inclusive lower bounds, highest first.
var gradeThresholds = []struct {
	min   decimal.Decimal
	grade models.Grade
}{
	{decimal.NewFromInt(900), models.GradeS},
	{decimal.NewFromInt(700), models.GradeA},
	{decimal.NewFromInt(500), models.GradeB},
	{decimal.NewFromInt(300), models.GradeC},
	{decimal.NewFromInt(100), models.GradeD},
}

// GradeFor maps a total score to its letter grade.
func GradeFor(total decimal.Decimal) models.Grade {
	for _, t := range gradeThresholds {
		if total.GreaterThanOrEqual(t.min) {
			return t.grade
		}
	}
	return models.GradeF
}
