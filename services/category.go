package services

import (
	"strings"
)

// DefaultSLADays applies to categories without their own SLA
const DefaultSLADays = 7

// DefaultCategorySLA holds the built-in SLA (in days) per issue category
var DefaultCategorySLA = map[string]int{
	"water_supply":  3,
	"electricity":   3,
	"health":        3,
	"sanitation":    5,
	"drainage":      7,
	"street_lights": 7,
	"education":     10,
	"roads":         15,
	"housing":       15,
	"other":         DefaultSLADays,
}

// CategorySLA resolves the SLA of an issue. A positive slaDays on the issue
// wins; otherwise the category table is used, then the fallback.
type CategorySLA struct {
	days     map[string]int
	fallback int
}

// NewCategorySLA merges overrides on top of DefaultCategorySLA. Non-positive
// values are ignored.
func NewCategorySLA(overrides map[string]int, fallback int) *CategorySLA {
	if fallback <= 0 {
		fallback = DefaultSLADays
	}
	days := make(map[string]int, len(DefaultCategorySLA)+len(overrides))
	for k, v := range DefaultCategorySLA {
		days[k] = v
	}
	for k, v := range overrides {
		if v > 0 {
			days[normalizeCategory(k)] = v
		}
	}
	return &CategorySLA{days: days, fallback: fallback}
}

// ForCategory returns the SLA for a category
func (c *CategorySLA) ForCategory(category string) int {
	if d, ok := c.days[normalizeCategory(category)]; ok {
		return d
	}
	return c.fallback
}

// Resolve returns the SLA days for an issue
func (c *CategorySLA) Resolve(slaDays int, category string) int {
	if slaDays > 0 {
		return slaDays
	}
	return c.ForCategory(category)
}

// "Street Lights" and "street-lights" both map to street_lights
func normalizeCategory(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	c = strings.ReplaceAll(c, "-", "_")
	return strings.ReplaceAll(c, " ", "_")
}
