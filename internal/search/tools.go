package search

import (
	"context"
	"fmt"
	"strings"
)

// Tools builds the specialized travel queries used by the pipeline stages
// and formats results for prompt injection. A failed search never fails the
// calling stage: errors degrade to an explanatory string.
type Tools struct {
	searcher Searcher
}

// NewTools creates the travel search toolset on top of a Searcher.
func NewTools(searcher Searcher) *Tools {
	return &Tools{searcher: searcher}
}

// DestinationInfo searches general destination information.
func (t *Tools) DestinationInfo(ctx context.Context, destination string) string {
	return t.run(ctx, fmt.Sprintf("%s travel destination guide attractions", destination),
		fmt.Sprintf("destination information for %s", destination))
}

// WeatherInfo searches weather and climate information for the travel dates.
func (t *Tools) WeatherInfo(ctx context.Context, destination, dates string) string {
	return t.run(ctx, fmt.Sprintf("%s weather forecast %s travel climate", destination, dates),
		fmt.Sprintf("weather information for %s", destination))
}

// Attractions searches attractions and activities, filtered by interests.
func (t *Tools) Attractions(ctx context.Context, destination, interests string) string {
	query := fmt.Sprintf("%s top attractions things to do", destination)
	if interests != "" {
		query += " " + interests
	}
	return t.run(ctx, query, fmt.Sprintf("attractions in %s", destination))
}

// Hotels searches accommodation matching the budget tier.
func (t *Tools) Hotels(ctx context.Context, destination, budget string) string {
	return t.run(ctx, fmt.Sprintf("%s hotels accommodation %s", destination, budget),
		fmt.Sprintf("hotels in %s", destination))
}

// Restaurants searches dining recommendations.
func (t *Tools) Restaurants(ctx context.Context, destination string) string {
	return t.run(ctx, fmt.Sprintf("%s best restaurants local food", destination),
		fmt.Sprintf("restaurants in %s", destination))
}

// LocalTips searches insider tips and local customs.
func (t *Tools) LocalTips(ctx context.Context, destination string) string {
	return t.run(ctx, fmt.Sprintf("%s local tips customs etiquette travel advice", destination),
		fmt.Sprintf("local tips for %s", destination))
}

// BudgetInfo searches travel cost information.
func (t *Tools) BudgetInfo(ctx context.Context, destination string, durationDays int) string {
	return t.run(ctx, fmt.Sprintf("%s travel costs budget %d days prices", destination, durationDays),
		fmt.Sprintf("budget information for %s", destination))
}

func (t *Tools) run(ctx context.Context, query, subject string) string {
	results, err := t.searcher.Search(ctx, query)
	if err != nil {
		return fmt.Sprintf("Error searching %s: %s", subject, err)
	}
	if len(results) == 0 {
		return fmt.Sprintf("No search results found for %s", subject)
	}
	return Format(results)
}

// Format renders search results as a numbered list for prompt injection.
func Format(results []Result) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.Title)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", r.Snippet)
		}
		if r.URL != "" {
			fmt.Fprintf(&b, "   Source: %s\n", r.URL)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
