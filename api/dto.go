/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. Decimal values
  travel as strings so the wire format is exact; dates are ISO YYYY-MM-DD.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Uses these types
  - store/sqlite: the same string-decimal convention in storage
*/
package api

import (
	"time"

	"github.com/warp/rating-engine/policy"
	"github.com/warp/rating-engine/rating"
)

// =============================================================================
// RATING TABLE TYPES
// =============================================================================

// RatingEntryDTO represents a rating entry in API responses.
type RatingEntryDTO struct {
	ID            int64  `json:"id"`
	InsuranceType string `json:"insurance_type"`
	RatingKey     string `json:"rating_key"`
	Multiplier    string `json:"multiplier"`
	ValidFrom     string `json:"valid_from"`
	ValidTo       string `json:"valid_to,omitempty"` // empty = open-ended
	CreatedAt     string `json:"created_at,omitempty"`
}

// CreateEntryRequest is the request to add a rating entry.
type CreateEntryRequest struct {
	InsuranceType string `json:"insurance_type"`
	RatingKey     string `json:"rating_key"`
	Multiplier    string `json:"multiplier"`
	ValidFrom     string `json:"valid_from"`
	ValidTo       string `json:"valid_to,omitempty"`
}

// CorrectEntryRequest closes an entry and inserts its replacement.
type CorrectEntryRequest struct {
	CloseTo     string             `json:"close_to"`
	Replacement CreateEntryRequest `json:"replacement"`
}

// =============================================================================
// QUOTE TYPES
// =============================================================================

// QuoteRequest asks for a premium calculation without issuing a policy.
type QuoteRequest struct {
	InsuranceType     string `json:"insurance_type"`
	AsOf              string `json:"as_of"`
	ManufactureYear   int    `json:"manufacture_year"`
	EngineCapacityCC  int    `json:"engine_capacity_cc"`
	PowerKW           int    `json:"power_kw"`
	ClientBirthDate   string `json:"client_birth_date,omitempty"` // required for AC
	DiscountSurcharge string `json:"discount_surcharge,omitempty"`
}

// FactorDTO is one applied rating factor.
type FactorDTO struct {
	Key        string `json:"key"`
	Multiplier string `json:"multiplier"`
}

// BreakdownDTO explains a computed premium.
type BreakdownDTO struct {
	InsuranceType     string      `json:"insurance_type"`
	AsOf              string      `json:"as_of"`
	BasePremium       string      `json:"base_premium"`
	Factors           []FactorDTO `json:"factors"`
	DiscountSurcharge string      `json:"discount_surcharge"`
	FinalPremium      string      `json:"final_premium"`
}

// =============================================================================
// POLICY TYPES
// =============================================================================

// IssuePolicyRequest creates a policy.
type IssuePolicyRequest struct {
	Number            string `json:"number"`
	InsuranceType     string `json:"insurance_type"`
	IssueDate         string `json:"issue_date"`
	StartDate         string `json:"start_date"`
	EndDate           string `json:"end_date"`
	ClientID          string `json:"client_id"`
	VehicleID         string `json:"vehicle_id"`
	ManufactureYear   int    `json:"manufacture_year"`
	EngineCapacityCC  int    `json:"engine_capacity_cc"`
	PowerKW           int    `json:"power_kw"`
	ClientBirthDate   string `json:"client_birth_date,omitempty"`
	DiscountSurcharge string `json:"discount_surcharge,omitempty"`
}

// PolicyDTO represents a policy in API responses. Status is the
// observable status as of the request's evaluation date.
type PolicyDTO struct {
	Number            string `json:"number"`
	InsuranceType     string `json:"insurance_type"`
	IssueDate         string `json:"issue_date"`
	StartDate         string `json:"start_date"`
	EndDate           string `json:"end_date"`
	Premium           string `json:"premium"`
	DiscountSurcharge string `json:"discount_surcharge"`
	Status            string `json:"status"`
	StatusAsOf        string `json:"status_as_of"`
	ClientID          string `json:"client_id"`
	VehicleID         string `json:"vehicle_id"`
	Version           int    `json:"version"`
}

// AmendDatesRequest changes the cover period of an active policy.
type AmendDatesRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// =============================================================================
// ERROR RESPONSE
// =============================================================================

// ErrorResponse is the standard error response. For overlap errors,
// Details carries the conflicting entries; for calculation errors, the
// missing rating keys.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toEntryDTO(e rating.RatingEntry) RatingEntryDTO {
	dto := RatingEntryDTO{
		ID:            int64(e.ID),
		InsuranceType: string(e.Type),
		RatingKey:     string(e.Key),
		Multiplier:    e.Multiplier.String(),
		ValidFrom:     e.ValidFrom.String(),
	}
	if e.ValidTo != nil {
		dto.ValidTo = e.ValidTo.String()
	}
	if !e.CreatedAt.IsZero() {
		dto.CreatedAt = e.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toEntryDTOs(entries []rating.RatingEntry) []RatingEntryDTO {
	dtos := make([]RatingEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

func toBreakdownDTO(b rating.PremiumBreakdown) BreakdownDTO {
	dto := BreakdownDTO{
		InsuranceType:     string(b.Type),
		AsOf:              b.AsOf.String(),
		BasePremium:       b.BasePremium.String(),
		DiscountSurcharge: b.DiscountSurcharge.String(),
		FinalPremium:      b.FinalPremium.String(),
	}
	for _, f := range b.Factors {
		dto.Factors = append(dto.Factors, FactorDTO{Key: string(f.Key), Multiplier: f.Multiplier.String()})
	}
	return dto
}

func toPolicyDTO(p *policy.Policy, asOf rating.Date) PolicyDTO {
	return PolicyDTO{
		Number:            p.Number,
		InsuranceType:     string(p.Type),
		IssueDate:         p.IssueDate.String(),
		StartDate:         p.StartDate.String(),
		EndDate:           p.EndDate.String(),
		Premium:           p.Premium.String(),
		DiscountSurcharge: p.DiscountSurcharge.String(),
		Status:            string(p.StatusOn(asOf)),
		StatusAsOf:        asOf.String(),
		ClientID:          p.ClientID,
		VehicleID:         p.VehicleID,
		Version:           p.Version,
	}
}
