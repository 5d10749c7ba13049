/*
handlers.go - HTTP API handlers for the rating engine

PURPOSE:
  Exposes the rating table, quote calculation, and policy lifecycle via
  REST. Handles HTTP request/response, JSON serialization, and delegates
  to domain logic.

ENDPOINTS:
  Rating table (administrative):
    GET    /api/rating/entries          Valid entries (per type/key/date)
    POST   /api/rating/entries          Add entry (409 on overlap)
    POST   /api/rating/entries/{id}/correct  Close + replace atomically
    DELETE /api/rating/entries/{id}     Delete future-only entry
    GET    /api/rating/entries/expired  Diagnostic: expired windows
    GET    /api/rating/entries/future   Diagnostic: future windows

  Quotes:
    POST   /api/quotes                  Premium calculation (422 on gaps)

  Policies:
    POST   /api/policies                Issue
    GET    /api/policies/{number}       Get with derived status
    POST   /api/policies/{number}/cancel
    PUT    /api/policies/{number}/dates Amend cover period
    GET    /api/policies/{number}/breakdown  Audit breakdown

  Admin:
    POST   /api/admin/seed              Load product catalog JSON

ERROR HANDLING:
  Errors map to HTTP status by taxonomy:
  - 400: malformed input, date/premium invariants
  - 404: unknown policy number or entry
  - 409: overlap, duplicate policy number, double cancel, terminal state,
         version conflict
  - 422: calculation failed (missing rating data, actionable key list)
  - 500: internal faults, including ambiguous-rating invariant violations

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/rating-engine/factory"
	"github.com/warp/rating-engine/policy"
	"github.com/warp/rating-engine/rating"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Entries    rating.EntryStore
	Calculator *rating.Calculator
	Lifecycle  *policy.Manager
}

// NewHandler wires the handler over a combined store (the sqlite store
// implements both interfaces).
func NewHandler(entries rating.EntryStore, policies policy.Store) *Handler {
	calc := rating.NewCalculator(rating.NewResolver(entries))
	return &Handler{
		Entries:    entries,
		Calculator: calc,
		Lifecycle:  policy.NewManager(policies, calc),
	}
}

// =============================================================================
// RATING TABLE HANDLERS
// =============================================================================

// ListEntries returns valid entries. With type+key it answers the point
// query; with type alone it returns the whole product tariff for the date.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	t, err := rating.ParseInsuranceType(r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid insurance type", err)
		return
	}
	asOf, err := queryDate(r, "as_of", rating.Today())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
		return
	}

	var entries []rating.RatingEntry
	if key := r.URL.Query().Get("key"); key != "" {
		entries, err = h.Entries.FindValid(r.Context(), t, rating.RatingKey(key), asOf)
	} else {
		entries, err = h.Entries.FindAllValid(r.Context(), t, asOf)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query rating entries", err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// CreateEntry adds a rating entry. An overlap is a 409 with the
// conflicting entries in the details, surfaced verbatim to the
// administrator.
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entry, err := entryFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rating entry", err)
		return
	}

	added, err := h.Entries.Add(r.Context(), entry)
	if err != nil {
		h.writeRatingError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toEntryDTO(added))
}

// CorrectEntry closes an entry and inserts its replacement atomically.
func (h *Handler) CorrectEntry(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entry id", err)
		return
	}

	var req CorrectEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	closeTo, err := rating.ParseDate(req.CloseTo)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid close_to date", err)
		return
	}
	replacement, err := entryFromRequest(req.Replacement)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid replacement entry", err)
		return
	}

	added, err := h.Entries.Correct(r.Context(), id, closeTo, replacement)
	if err != nil {
		h.writeRatingError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toEntryDTO(added))
}

// DeleteEntry removes a future-only entry.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entry id", err)
		return
	}
	asOf, err := queryDate(r, "as_of", rating.Today())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
		return
	}

	if err := h.Entries.Delete(r.Context(), id, asOf); err != nil {
		h.writeRatingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListExpiredEntries is a diagnostic report of closed windows.
func (h *Handler) ListExpiredEntries(w http.ResponseWriter, r *http.Request) {
	h.listByWindow(w, r, h.Entries.FindExpired)
}

// ListFutureEntries is a diagnostic report of not-yet-effective windows.
func (h *Handler) ListFutureEntries(w http.ResponseWriter, r *http.Request) {
	h.listByWindow(w, r, h.Entries.FindFutureEffective)
}

func (h *Handler) listByWindow(w http.ResponseWriter, r *http.Request, query func(context.Context, rating.Date) ([]rating.RatingEntry, error)) {
	asOf, err := queryDate(r, "as_of", rating.Today())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
		return
	}

	entries, err := query(r.Context(), asOf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query rating entries", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// =============================================================================
// QUOTE HANDLERS
// =============================================================================

// Quote computes a premium without issuing a policy. A gap in the rating
// table is a 422 listing every missing key.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in, err := calcInput(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quote request", err)
		return
	}

	breakdown, err := h.Calculator.Calculate(r.Context(), in)
	if err != nil {
		h.writeRatingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBreakdownDTO(breakdown))
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// IssuePolicy creates a policy in ACTIVE state.
func (h *Handler) IssuePolicy(w http.ResponseWriter, r *http.Request) {
	var req IssuePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	issueReq, err := issueRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid policy request", err)
		return
	}

	p, _, err := h.Lifecycle.Issue(r.Context(), issueReq)
	if err != nil {
		h.writePolicyError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPolicyDTO(p, rating.Today()))
}

// GetPolicy returns a policy with its status derived as of ?as_of
// (default today).
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "as_of", rating.Today())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
		return
	}

	p, err := h.Lifecycle.Get(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.writePolicyError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPolicyDTO(p, asOf))
}

// CancelPolicy moves an active policy to CANCELED.
func (h *Handler) CancelPolicy(w http.ResponseWriter, r *http.Request) {
	on, err := queryDate(r, "on", rating.Today())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid on date", err)
		return
	}

	p, err := h.Lifecycle.Cancel(r.Context(), chi.URLParam(r, "number"), on)
	if err != nil {
		h.writePolicyError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPolicyDTO(p, on))
}

// AmendPolicyDates changes the cover period of an active policy.
func (h *Handler) AmendPolicyDates(w http.ResponseWriter, r *http.Request) {
	var req AmendDatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := rating.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}
	end, err := rating.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date", err)
		return
	}

	p, err := h.Lifecycle.AmendDates(r.Context(), chi.URLParam(r, "number"), rating.Today(), start, end)
	if err != nil {
		h.writePolicyError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPolicyDTO(p, rating.Today()))
}

// GetBreakdown returns the premium breakdown retained at issuance.
func (h *Handler) GetBreakdown(w http.ResponseWriter, r *http.Request) {
	b, err := h.Lifecycle.Breakdown(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.writePolicyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBreakdownDTO(b))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// SeedCatalog loads a product catalog JSON document into the rating
// table. With an empty body it loads the built-in default catalog.
func (h *Handler) SeedCatalog(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}
	if len(raw) == 0 {
		raw = []byte(factory.DefaultCatalogJSON())
	}

	catalog, err := factory.ParseCatalog(string(raw))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid catalog", err)
		return
	}

	n, err := catalog.Seed(r.Context(), h.Entries)
	if err != nil {
		h.writeRatingError(w, err)
		return
	}
	for t, base := range catalog.BasePremiums {
		h.Calculator.SetBasePremium(t, base)
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries_seeded": n})
}

// Health is the liveness endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func (h *Handler) writeRatingError(w http.ResponseWriter, err error) {
	var overlap *rating.OverlapError
	if errors.As(err, &overlap) {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   overlap.Error(),
			Code:    "overlap",
			Details: toEntryDTOs(overlap.Conflicts),
		})
		return
	}

	var calc *rating.CalculationError
	if errors.As(err, &calc) {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   calc.Error(),
			Code:    "missing_rating_data",
			Details: calc.MissingKeys,
		})
		return
	}

	switch {
	case rating.IsInternalFault(err):
		// The overlap invariant was bypassed. Log loudly; this is the
		// one rating failure that warrants alerting.
		log.Printf("ALERT: rating table consistency fault: %v", err)
		writeError(w, http.StatusInternalServerError, "Rating table inconsistency", err)
	case rating.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Rating entry not found", err)
	case rating.IsClientError(err):
		writeError(w, http.StatusConflict, "Rating table maintenance rejected", err)
	default:
		writeError(w, http.StatusBadRequest, "Invalid rating operation", err)
	}
}

func (h *Handler) writePolicyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, policy.ErrPolicyNotFound):
		writeError(w, http.StatusNotFound, "Policy not found", err)
	case errors.Is(err, policy.ErrInvalidDates), errors.Is(err, policy.ErrInvalidPremium):
		writeError(w, http.StatusBadRequest, "Policy validation failed", err)
	case errors.Is(err, policy.ErrInvalidTransition), errors.Is(err, policy.ErrPolicyImmutable),
		errors.Is(err, policy.ErrPolicyExists), errors.Is(err, policy.ErrVersionConflict):
		writeError(w, http.StatusConflict, "Policy state conflict", err)
	default:
		h.writeRatingError(w, err)
	}
}

// =============================================================================
// REQUEST PARSING HELPERS
// =============================================================================

func entryFromRequest(req CreateEntryRequest) (rating.RatingEntry, error) {
	t, err := rating.ParseInsuranceType(req.InsuranceType)
	if err != nil {
		return rating.RatingEntry{}, err
	}
	mult, err := decimal.NewFromString(req.Multiplier)
	if err != nil {
		return rating.RatingEntry{}, fmt.Errorf("invalid multiplier: %w", err)
	}
	from, err := rating.ParseDate(req.ValidFrom)
	if err != nil {
		return rating.RatingEntry{}, err
	}

	entry := rating.RatingEntry{
		Type:       t,
		Key:        rating.RatingKey(req.RatingKey),
		Multiplier: mult,
		ValidFrom:  from,
	}
	if req.ValidTo != "" {
		to, err := rating.ParseDate(req.ValidTo)
		if err != nil {
			return rating.RatingEntry{}, err
		}
		entry.ValidTo = &to
	}
	return entry, nil
}

func calcInput(req QuoteRequest) (rating.Input, error) {
	t, err := rating.ParseInsuranceType(req.InsuranceType)
	if err != nil {
		return rating.Input{}, err
	}
	asOf, err := rating.ParseDate(req.AsOf)
	if err != nil {
		return rating.Input{}, err
	}

	in := rating.Input{
		Type: t,
		AsOf: asOf,
		Vehicle: rating.VehicleAttributes{
			ManufactureYear:  req.ManufactureYear,
			EngineCapacityCC: req.EngineCapacityCC,
			PowerKW:          req.PowerKW,
		},
		DiscountSurcharge: decimal.Zero,
	}
	if req.ClientBirthDate != "" {
		birth, err := rating.ParseDate(req.ClientBirthDate)
		if err != nil {
			return rating.Input{}, err
		}
		in.Client = rating.ClientAttributes{BirthDate: birth}
	} else if t == rating.TypeAC {
		return rating.Input{}, fmt.Errorf("client_birth_date is required for AC")
	}
	if req.DiscountSurcharge != "" {
		in.DiscountSurcharge, err = decimal.NewFromString(req.DiscountSurcharge)
		if err != nil {
			return rating.Input{}, fmt.Errorf("invalid discount_surcharge: %w", err)
		}
	}
	return in, nil
}

func issueRequest(req IssuePolicyRequest) (policy.IssueRequest, error) {
	if req.Number == "" {
		return policy.IssueRequest{}, fmt.Errorf("number is required")
	}

	in, err := calcInput(QuoteRequest{
		InsuranceType:     req.InsuranceType,
		AsOf:              req.StartDate,
		ManufactureYear:   req.ManufactureYear,
		EngineCapacityCC:  req.EngineCapacityCC,
		PowerKW:           req.PowerKW,
		ClientBirthDate:   req.ClientBirthDate,
		DiscountSurcharge: req.DiscountSurcharge,
	})
	if err != nil {
		return policy.IssueRequest{}, err
	}

	issueDate, err := rating.ParseDate(req.IssueDate)
	if err != nil {
		return policy.IssueRequest{}, err
	}
	endDate, err := rating.ParseDate(req.EndDate)
	if err != nil {
		return policy.IssueRequest{}, err
	}

	return policy.IssueRequest{
		Number:            req.Number,
		Type:              in.Type,
		IssueDate:         issueDate,
		StartDate:         in.AsOf,
		EndDate:           endDate,
		Vehicle:           in.Vehicle,
		Client:            in.Client,
		ClientID:          req.ClientID,
		VehicleID:         req.VehicleID,
		DiscountSurcharge: in.DiscountSurcharge,
	}, nil
}

func entryID(r *http.Request) (rating.EntryID, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return rating.EntryID(id), err
}

func queryDate(r *http.Request, param string, fallback rating.Date) (rating.Date, error) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return fallback, nil
	}
	return rating.ParseDate(raw)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
