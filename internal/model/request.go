package model

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for travel dates.
const DateLayout = "2006-01-02"

// Budget tiers accepted on plan requests.
const (
	BudgetLow    = "budget"
	BudgetMid    = "mid-range"
	BudgetLuxury = "luxury"
)

// PlanRequest is a travel planning request as submitted by a client.
type PlanRequest struct {
	Destination string   `json:"destination"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	BudgetRange string   `json:"budget_range"`
	GroupSize   int      `json:"group_size"`
	Interests   []string `json:"interests"`

	// Optional preferences.
	DietaryRestrictions      string `json:"dietary_restrictions,omitempty"`
	ActivityLevel            string `json:"activity_level,omitempty"`
	TravelStyle              string `json:"travel_style,omitempty"`
	TransportationPreference string `json:"transportation_preference,omitempty"`
	AccommodationPreference  string `json:"accommodation_preference,omitempty"`
	SpecialOccasion          string `json:"special_occasion,omitempty"`
	SpecialRequirements      string `json:"special_requirements,omitempty"`
	Currency                 string `json:"currency,omitempty"`
}

// Validate validates the plan request.
func (r *PlanRequest) Validate() error {
	if r.Destination == "" {
		return fmt.Errorf("destination is required: %w", ErrNotValid)
	}

	start, err := time.Parse(DateLayout, r.StartDate)
	if err != nil {
		return fmt.Errorf("start_date must be a YYYY-MM-DD date: %w", ErrNotValid)
	}
	end, err := time.Parse(DateLayout, r.EndDate)
	if err != nil {
		return fmt.Errorf("end_date must be a YYYY-MM-DD date: %w", ErrNotValid)
	}
	if end.Before(start) {
		return fmt.Errorf("end_date is before start_date: %w", ErrNotValid)
	}

	switch r.BudgetRange {
	case BudgetLow, BudgetMid, BudgetLuxury:
	case "":
		return fmt.Errorf("budget_range is required: %w", ErrNotValid)
	default:
		return fmt.Errorf("budget_range must be one of %q, %q or %q: %w", BudgetLow, BudgetMid, BudgetLuxury, ErrNotValid)
	}

	if r.GroupSize < 1 {
		return fmt.Errorf("group_size must be at least 1: %w", ErrNotValid)
	}

	return nil
}

// Duration returns the trip length in days (both travel dates inclusive).
// The request must have been validated first.
func (r *PlanRequest) Duration() int {
	start, _ := time.Parse(DateLayout, r.StartDate)
	end, _ := time.Parse(DateLayout, r.EndDate)
	return int(end.Sub(start).Hours()/24) + 1
}

// TravelDates returns the human readable date range of the trip.
func (r *PlanRequest) TravelDates() string {
	return fmt.Sprintf("%s to %s", r.StartDate, r.EndDate)
}
