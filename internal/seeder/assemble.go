package seeder

import (
	"strings"

	"github.com/toolscope/discovery-engine/internal/model"
)

// repeat joins s with itself n times, separated by a space, the cheapest way
// to give a phrase more relative mass in a bag-of-words embedding without a
// weighted-embedding API.
func repeat(s string, n int) string {
	if s == "" || n <= 0 {
		return ""
	}
	parts := make([]string, n)
	for i := range parts {
		parts[i] = s
	}
	return strings.Join(parts, " ")
}

func joinRepeat(values []string, n int) string {
	if len(values) == 0 || n <= 0 {
		return ""
	}
	return repeat(strings.Join(values, " "), n)
}

func assembleText(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}

// assembleSpace builds the weighted content-assembly text for one named
// vector space per the recipe table, or returns ok=false if the record is
// missing that space's sole input (so the caller skips only that space).
func assembleSpace(space model.SpaceName, r model.Record) (string, bool) {
	switch space {
	case model.SpaceSemantic:
		text := assembleText(
			repeat(r.ShortDescription, 3),
			r.LongDescription,
			joinRepeat(r.UseCases, 2),
			repeat(r.Name, 2),
			strings.Join(r.Categories, " "),
			strings.Join(r.Functionality, " "),
		)
		return text, text != ""

	case model.SpaceEntitiesCategories:
		if len(r.Categories) == 0 {
			return "", false
		}
		return joinRepeat(r.Categories, 5), true

	case model.SpaceEntitiesFunctionality:
		if len(r.Functionality) == 0 {
			return "", false
		}
		return joinRepeat(r.Functionality, 5), true

	case model.SpaceEntitiesAliases:
		text := assembleText(
			repeat(r.Name, 5),
			joinRepeat(r.SearchKeywords, 3),
			r.ShortDescription,
		)
		return text, text != ""

	case model.SpaceCompositesToolType:
		interfaces := make([]string, len(r.Interfaces))
		for i, tag := range r.Interfaces {
			interfaces[i] = string(tag)
		}
		text := assembleText(
			joinRepeat(r.Categories, 3),
			joinRepeat(r.Functionality, 3),
			joinRepeat(interfaces, 2),
			joinRepeat(r.Deployment, 2),
			r.Name,
		)
		return text, text != ""

	default:
		return "", false
	}
}
