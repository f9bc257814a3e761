package agent

import (
	"fmt"
	"strings"

	"github.com/FlyAIBox/tripflow/internal/model"
)

// searchMarker is the reply prefix a stage uses to request a web search.
// The remainder of the line is the search query.
const searchMarker = "NEED_SEARCH:"

var stageSystemPrompts = map[Stage]string{
	StageTravelAdvisor: `You are the travel advisor of a travel planning team, specialized in
destination expertise and recommendations.

Your expertise covers destination knowledge and highlights, attraction
recommendations, cultural insights and best practices for travelers.

Provide comprehensive destination advice: top attractions and must-sees,
cultural insights and etiquette tips, best areas to stay and explore, and
activity recommendations matching the travelers' interests.

If you need current information about the destination, reply with
'NEED_SEARCH: <search query>'. Otherwise answer from your knowledge.`,

	StageWeatherAnalyst: `You are the weather analyst of a travel planning team, specialized in
weather intelligence and climate-aware planning.

Your expertise covers weather pattern analysis, seasonal recommendations,
weather-dependent activity planning and climate considerations.

Provide weather-aware recommendations: expected conditions during the travel
dates, best windows for outdoor activities, weather-appropriate activity
suggestions and packing advice.

If you need current weather data, reply with 'NEED_SEARCH: <search query>'.
Otherwise answer from climate knowledge.`,

	StageBudgetOptimizer: `You are the budget optimizer of a travel planning team, specialized in
cost analysis and money-saving strategies.

Your expertise covers travel cost analysis and budgeting, money-saving tips,
budget allocation and affordable alternatives.

Provide budget guidance: estimated daily and total costs, a budget breakdown
by category (accommodation, food, activities, transport), saving strategies
and affordable alternatives to expensive activities.

If you need current price information, reply with
'NEED_SEARCH: <search query>'. Otherwise provide your analysis.`,

	StageLocalExpert: `You are the local expert of a travel planning team, contributing insider
knowledge and local insights.

Your expertise covers local customs and cultural nuances, hidden gems and
off-the-beaten-path recommendations, local dining and entertainment, and
practical local tips.

Provide insider insights: hidden gems and local favorites, cultural
etiquette and customs, local dining recommendations and insider tips for
getting around and saving money.

If you need current local information, reply with
'NEED_SEARCH: <search query>'. Otherwise share your local expertise.`,

	StageItineraryPlanner: `You are the itinerary planner of a travel planning team, specialized in
schedule optimization and logistics.

Your expertise covers daily itinerary planning, transport and logistics
coordination, time management and activity sequencing.

Create an optimized itinerary: day-by-day schedule recommendations, optimal
timing for activities, transport suggestions between locations, and rest and
meal planning. Build on the other contributions where they are available and
produce a structured daily plan that maximizes the experience.`,

	// simplePrompt is the single-stage fallback planner instruction.
	simpleStage: `You are a professional travel planner. Produce a complete, detailed and
realistic travel plan for the request, structured as markdown with these
sections: trip overview, day-by-day itinerary, accommodation suggestions,
food recommendations, budget breakdown and practical tips.`,
}

// simpleStage keys the fallback prompt in stageSystemPrompts.
const simpleStage Stage = "simple"

// requestSummary renders the request fields shared by every stage prompt.
func requestSummary(req model.PlanRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Destination: %s\n", req.Destination)
	fmt.Fprintf(&b, "Duration: %d days (%s)\n", req.Duration(), req.TravelDates())
	fmt.Fprintf(&b, "Budget range: %s\n", req.BudgetRange)
	fmt.Fprintf(&b, "Group size: %d\n", req.GroupSize)
	if len(req.Interests) > 0 {
		fmt.Fprintf(&b, "Interests: %s\n", strings.Join(req.Interests, ", "))
	}
	for _, extra := range []struct{ label, value string }{
		{"Dietary restrictions", req.DietaryRestrictions},
		{"Activity level", req.ActivityLevel},
		{"Travel style", req.TravelStyle},
		{"Transportation preference", req.TransportationPreference},
		{"Accommodation preference", req.AccommodationPreference},
		{"Special occasion", req.SpecialOccasion},
		{"Special requirements", req.SpecialRequirements},
		{"Currency", req.Currency},
	} {
		if extra.value != "" {
			fmt.Fprintf(&b, "%s: %s\n", extra.label, extra.value)
		}
	}
	return b.String()
}

// stagePrompt builds the user prompt for a stage: the request, the prior
// stage contributions and optionally the results of a requested search.
func stagePrompt(req model.PlanRequest, prior []model.StageOutput, searchResults string) string {
	var b strings.Builder
	b.WriteString("Current planning request:\n")
	b.WriteString(requestSummary(req))

	if len(prior) > 0 {
		b.WriteString("\nContributions from the rest of the team so far:\n")
		for _, out := range prior {
			fmt.Fprintf(&b, "\n--- %s ---\n%s\n", out.Stage, out.Response)
		}
	}

	if searchResults != "" {
		b.WriteString("\nWeb search results for your query:\n")
		b.WriteString(searchResults)
		b.WriteString("\n\nUse these results in your answer. Do not request another search.")
	}

	return b.String()
}

// parseSearchRequest extracts the query from a NEED_SEARCH reply. Returns
// false when the reply is a regular contribution.
func parseSearchRequest(response string) (query string, ok bool) {
	idx := strings.Index(response, searchMarker)
	if idx < 0 {
		return "", false
	}
	rest := response[idx+len(searchMarker):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	query = strings.TrimSpace(strings.Trim(strings.TrimSpace(rest), "'\"[]"))
	if query == "" {
		return "", false
	}
	return query, true
}
