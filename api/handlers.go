/*
handlers.go - HTTP API handlers for the incentive policy engine

PURPOSE:
  Exposes policy administration and incentive calculation over REST. Handles
  HTTP request/response and JSON, and delegates to incentive.Service.

ENDPOINTS:
  Domains:
    GET    /api/domains                  Domains, sub-keys, built-in defaults

  Policies:
    GET    /api/policies                 List (?domain=, &sub_key= for history)
    POST   /api/policies                 Create; returns adjusted siblings
    GET    /api/policies/select          In-force policy (?domain=&sub_key=&asof=)
    GET    /api/policies/{id}            Get one version
    PUT    /api/policies/{id}            Replace; returns adjusted siblings
    DELETE /api/policies/{id}            Deactivate (?hard=true removes)

  Incentives:
    POST   /api/incentives/calculate     Total and per-contributor shares
    POST   /api/incentives/preview       One contributor's award

  Audit:
    GET    /api/audit                    (?policy_id=&domain=&limit=)

  Scenarios (scenarios.go):
    GET    /api/scenarios                Demo policy histories
    POST   /api/scenarios/load           Append one to the store

REQUEST FLOW:
  1. Decode JSON
  2. Structural validation (RequestValidator)
  3. Call incentive.Service
  4. Serialize response

ERROR HANDLING:
  - 400: ValidationError, with one entry per field in "fields"
  - 404: unknown policy ID
  - 500: anything else (logged)

ACTOR:
  Writes are attributed to the X-Actor-ID header ("anonymous" if absent).
  There is no authentication in this service.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/campus-rims/incentive-engine/domains"
	"github.com/campus-rims/incentive-engine/factory"
	"github.com/campus-rims/incentive-engine/incentive"
	"github.com/campus-rims/incentive-engine/internal/logger"
)

// ActorHeader names the caller on write requests.
const ActorHeader = "X-Actor-ID"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Service   *incentive.Service
	Registry  domains.Registry
	Defaults  *domains.Defaults
	Audit     incentive.AuditReader
	Factory   *factory.PolicyFactory
	Validator *RequestValidator
	Log       *logger.Logger
}

// NewHandler creates a handler. audit may be nil, in which case the audit
// endpoint returns an empty list.
func NewHandler(svc *incentive.Service, defaults *domains.Defaults, audit incentive.AuditReader, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		Service:   svc,
		Registry:  domains.NewRegistry(),
		Defaults:  defaults,
		Audit:     audit,
		Factory:   factory.NewPolicyFactory(),
		Validator: NewRequestValidator(),
		Log:       log,
	}
}

// =============================================================================
// DOMAIN ENDPOINTS
// =============================================================================

// ListDomains returns every domain with its sub-keys and built-in defaults.
func (h *Handler) ListDomains(w http.ResponseWriter, r *http.Request) {
	today := h.Service.Today()
	var builtins []incentive.Policy
	if h.Defaults != nil {
		builtins = h.Defaults.All()
	}

	result := make([]DomainDTO, 0, len(incentive.AllDomains))
	for _, pd := range h.Registry.All() {
		dto := DomainDTO{
			Domain:    string(pd.Domain()),
			SubKeys:   pd.SubKeys(),
			ShareMode: string(pd.ShareMode()),
			Defaults:  []factory.PolicyJSON{},
		}
		if dto.SubKeys == nil {
			dto.SubKeys = []string{}
		}
		for _, p := range builtins {
			if p.Key.Domain == pd.Domain() {
				dto.Defaults = append(dto.Defaults, h.Factory.ToJSON(p, today))
			}
		}
		result = append(result, dto)
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// POLICY ENDPOINTS
// =============================================================================

// ListPolicies returns stored policies. With both domain and sub_key it
// returns that key's version history.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	domain := strings.ToLower(strings.TrimSpace(q.Get("domain")))

	var (
		policies []incentive.Policy
		err      error
	)
	if q.Has("sub_key") && domain != "" {
		policies, err = h.Service.History(r.Context(), incentive.DomainKey{Domain: incentive.Domain(domain), SubKey: q.Get("sub_key")})
	} else {
		policies, err = h.Service.ListPolicies(r.Context(), incentive.Domain(domain))
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toPolicyDTOs(policies))
}

// CreatePolicy stores a new policy version.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	p, ok := h.decodePolicy(w, r)
	if !ok {
		return
	}

	result, err := h.Service.CreatePolicy(r.Context(), p, actorID(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toWriteResponse(result))
}

// GetPolicy returns one policy by ID.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.GetPolicy(r.Context(), incentive.PolicyID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.ToJSON(p, h.Service.Today()))
}

// UpdatePolicy replaces a policy version.
func (h *Handler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	p, ok := h.decodePolicy(w, r)
	if !ok {
		return
	}

	result, err := h.Service.UpdatePolicy(r.Context(), incentive.PolicyID(chi.URLParam(r, "id")), p, actorID(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toWriteResponse(result))
}

// DeletePolicy deactivates a policy, or removes it with ?hard=true.
func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	hard := false
	if v := r.URL.Query().Get("hard"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeValidation(w, incentive.NewValidationError("hard", "must be true or false"))
			return
		}
		hard = b
	}

	if err := h.Service.DeletePolicy(r.Context(), incentive.PolicyID(chi.URLParam(r, "id")), hard, actorID(r)); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SelectPolicy returns the policy in force for a key on a date, or the
// built-in default.
func (h *Handler) SelectPolicy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := incentive.DomainKey{Domain: incentive.Domain(q.Get("domain")), SubKey: q.Get("sub_key")}

	asOf, err := parseAsOf(q.Get("asof"))
	if err != nil {
		writeValidation(w, err)
		return
	}

	p, err := h.Service.SelectPolicy(r.Context(), key, asOf)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.ToJSON(p, h.Service.Today()))
}

func (h *Handler) decodePolicy(w http.ResponseWriter, r *http.Request) (incentive.Policy, bool) {
	var req PolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return incentive.Policy{}, false
	}
	if err := h.Validator.Check(req); err != nil {
		h.writeServiceError(w, err)
		return incentive.Policy{}, false
	}
	p, err := h.Factory.FromJSON(req.Document())
	if err != nil {
		h.writeServiceError(w, err)
		return incentive.Policy{}, false
	}
	return p, true
}

// =============================================================================
// INCENTIVE ENDPOINTS
// =============================================================================

// Calculate returns the total award and each contributor's share.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	if err := h.Validator.Check(req); err != nil {
		h.writeServiceError(w, err)
		return
	}
	asOf, err := parseAsOf(req.AsOf)
	if err != nil {
		writeValidation(w, err)
		return
	}

	res, err := h.Service.CalculateIncentive(r.Context(), req.Key(), asOf, req.Contribution())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := CalculateResponse{
		Policy:    res.Policy,
		AsOf:      res.AsOf.String(),
		Strategy:  res.Strategy,
		Total:     res.Total,
		Breakdown: res.Breakdown,
		Shares:    make([]ShareDTO, len(res.Shares)),
	}
	if resp.Breakdown == nil {
		resp.Breakdown = []incentive.Entry{}
	}
	for i, s := range res.Shares {
		resp.Shares[i] = ShareDTO{
			ContributorID: s.Contributor.ID,
			Name:          s.Contributor.Name,
			Role:          string(s.Contributor.Role),
			Category:      string(s.Contributor.Category),
			Position:      s.Contributor.Position,
			Amount:        s.Amount,
			Points:        s.Points,
			Basis:         s.Basis,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Preview returns what a single contributor would receive.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	if err := h.Validator.Check(req); err != nil {
		h.writeServiceError(w, err)
		return
	}
	asOf, err := parseAsOf(req.AsOf)
	if err != nil {
		writeValidation(w, err)
		return
	}

	ref, result, err := h.Service.CalculateForContributor(r.Context(), req.Key(), asOf, req.Contribution(),
		incentive.Role(strings.ToLower(req.Role)), incentive.Category(req.Category))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewResponse{Policy: ref, Result: result})
}

// =============================================================================
// AUDIT ENDPOINTS
// =============================================================================

// ListAudit returns audit events newest first.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.Audit == nil {
		writeJSON(w, http.StatusOK, []AuditEventDTO{})
		return
	}

	q := r.URL.Query()
	filter := incentive.AuditFilter{
		PolicyID: incentive.PolicyID(q.Get("policy_id")),
		Domain:   incentive.Domain(strings.ToLower(q.Get("domain"))),
		Limit:    100,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeValidation(w, incentive.NewValidationError("limit", "must be a positive integer"))
			return
		}
		filter.Limit = n
	}

	events, err := h.Audit.QueryAudit(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	today := h.Service.Today()
	result := make([]AuditEventDTO, len(events))
	for i, ev := range events {
		result[i] = AuditEventDTO{
			ID:       ev.ID,
			Action:   string(ev.Action),
			Domain:   string(ev.Key.Domain),
			SubKey:   ev.Key.SubKey,
			PolicyID: string(ev.PolicyID),
			ActorID:  ev.ActorID,
			At:       ev.At,
		}
		if ev.Before != nil {
			doc := h.Factory.ToJSON(*ev.Before, today)
			result[i].Before = &doc
		}
		if ev.After != nil {
			doc := h.Factory.ToJSON(*ev.After, today)
			result[i].After = &doc
		}
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) toPolicyDTOs(policies []incentive.Policy) []factory.PolicyJSON {
	today := h.Service.Today()
	result := make([]factory.PolicyJSON, len(policies))
	for i, p := range policies {
		result[i] = h.Factory.ToJSON(p, today)
	}
	return result
}

func (h *Handler) toWriteResponse(res *incentive.WriteResult) WriteResponse {
	today := h.Service.Today()
	resp := WriteResponse{
		Policy:      h.Factory.ToJSON(res.Policy, today),
		Adjustments: make([]AdjustmentDTO, len(res.Adjustments)),
	}
	for i, adj := range res.Adjustments {
		resp.Adjustments[i] = AdjustmentDTO{
			PolicyID: string(adj.PolicyID),
			Action:   string(adj.Action),
			Before:   h.Factory.ToJSON(adj.Before, today),
			After:    h.Factory.ToJSON(adj.After, today),
		}
	}
	return resp
}

func actorID(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(ActorHeader)); v != "" {
		return v
	}
	return "anonymous"
}

func parseAsOf(s string) (*incentive.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := incentive.ParseDate(s)
	if err != nil {
		return nil, incentive.NewValidationError("asof", "%v", err)
	}
	return &d, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeValidation(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: "validation failed"}
	var ve *incentive.ValidationError
	if errors.As(err, &ve) {
		resp.Fields = ve.Fields
	} else {
		resp.Details = err.Error()
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

// writeServiceError maps engine errors to HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case incentive.IsClientError(err):
		writeValidation(w, err)
	case incentive.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	default:
		h.Log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}
