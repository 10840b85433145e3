package templates

import (
	"fmt"
)

// Grade is one row of a grade lookup table.
type Grade struct {
	Min    float64
	Letter string
	Points int
}

// ResultGrades maps a subject total to a letter and grade points. The first
// row whose Min is reached wins.
var ResultGrades = []Grade{
	{70, "A", 9},
	{60, "B", 8},
	{55, "C", 7},
	{50, "D", 6},
	{45, "E", 5},
	{40, "P", 4},
}

var failGrade = Grade{0, "F", 0}

// ResultGrade returns the grade for a subject total.
func ResultGrade(total float64) Grade {
	for _, g := range ResultGrades {
		if total >= g.Min {
			return g
		}
	}
	return failGrade
}

// SGPA formats Σ(points×credits)/Σcredits to three decimals, or "0.000"
// when there are no credits.
func SGPA(points, credits []float64) string {
	var weighted, total float64
	for i := range points {
		weighted += points[i] * credits[i]
		total += credits[i]
	}
	if total <= 0 {
		return "0.000"
	}
	return fmt.Sprintf("%.3f", weighted/total)
}

// PercentGrades maps a percentage to a report card letter grade.
var PercentGrades = []Grade{
	{90, "A+", 0},
	{80, "A", 0},
	{70, "B+", 0},
	{60, "B", 0},
	{50, "C", 0},
	{40, "D", 0},
}

// PercentGrade returns the letter for a percentage.
func PercentGrade(pct float64) string {
	for _, g := range PercentGrades {
		if pct >= g.Min {
			return g.Letter
		}
	}
	return "F"
}

// Remark returns the report card remark for an overall percentage.
func Remark(pct float64) string {
	switch {
	case pct >= 90:
		return "Excellent"
	case pct >= 80:
		return "Very Good"
	case pct >= 70:
		return "Good"
	case pct >= 60:
		return "Satisfactory"
	case pct >= 40:
		return "Needs Improvement"
	}
	return "Poor"
}

// Percentage returns marks/max as a percentage; zero max yields 0.
func Percentage(marks, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return marks / max * 100
}
