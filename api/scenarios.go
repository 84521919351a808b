/*
scenarios.go - Demo policy histories for walkthroughs and manual testing

PURPOSE:

	Loads small, realistic policy histories through the normal write path so
	the overlap rules can be seen in the API responses and the audit log.
	Nothing is reset: each load appends versions to whatever is stored.

AVAILABLE SCENARIOS:

	journal-revision:    open-ended 2023 journal policy, revised mid-2024 (truncation)
	patent-replacement:  short patent policy replaced by a wider one (deactivation)
	grant-schedule:      2024 grant policy with the 2025 successor already scheduled

USAGE VIA API:

	GET  /api/scenarios
	POST /api/scenarios/load
	{"scenario_id": "journal-revision"}

ADDING NEW SCENARIOS:
 1. Add an entry to 'scenarios' with the policy documents in write order
 2. Documents use the same JSON as POST /api/policies

SEE ALSO:
  - handlers.go: CreatePolicy (same write path)
  - factory/policy.go: Policy JSON definitions
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	documents []string
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "journal-revision",
			Name:        "Journal Revision",
			Description: "Open-ended journal policy from 2023, revised from 2024-07-01",
			Domain:      "research_paper",
		},
		documents: []string{
			`{
				"domain": "research_paper", "sub_key": "journal",
				"policy_name": "Journal incentives 2023",
				"effective_from": "2023-01-01",
				"base_incentive_amount": 8000, "base_points": 8,
				"split_policy": "author_role_based",
				"quartile_bonuses": {"Q1": {"amount": 4000, "points": 4}, "Q2": {"amount": 2000, "points": 2}}
			}`,
			`{
				"domain": "research_paper", "sub_key": "journal",
				"policy_name": "Journal incentives 2024 revision",
				"effective_from": "2024-07-01",
				"base_incentive_amount": 10000, "base_points": 10,
				"split_policy": "author_role_based",
				"role_multipliers": {"co_author": 0.4},
				"quartile_bonuses": {"Q1": {"amount": 5000, "points": 5}, "Q2": {"amount": 2500, "points": 2}},
				"indexing_bonuses": {"scopus": {"amount": 1500, "points": 1}, "wos": {"amount": 2000, "points": 2}}
			}`,
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "patent-replacement",
			Name:        "Patent Replacement",
			Description: "Short 2024 patent policy replaced by an open-ended one covering it",
			Domain:      "ipr",
		},
		documents: []string{
			`{
				"domain": "ipr", "sub_key": "patent",
				"policy_name": "Patent pilot",
				"effective_from": "2024-03-01", "effective_to": "2024-12-31",
				"base_incentive_amount": 40000, "base_points": 40,
				"split_policy": "primary_inventor"
			}`,
			`{
				"domain": "ipr", "sub_key": "patent",
				"policy_name": "Patent incentives",
				"effective_from": "2024-01-01",
				"base_incentive_amount": 50000, "base_points": 50,
				"split_policy": "primary_inventor", "primary_share": 60,
				"international_bonus": {"amount": 20000, "points": 10}
			}`,
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "grant-schedule",
			Name:        "Grant Schedule",
			Description: "Government research grant policy for 2024 and its 2025 successor",
			Domain:      "grant",
		},
		documents: []string{
			`{
				"domain": "grant", "sub_key": "government:research",
				"policy_name": "Government research grants 2024",
				"effective_from": "2024-01-01", "effective_to": "2024-12-31",
				"base_incentive_amount": 15000, "base_points": 12,
				"split_policy": "percentage_based",
				"role_percentages": [
					{"role": "principal_investigator", "percentage": 60},
					{"role": "co_investigator", "percentage": 40}
				]
			}`,
			`{
				"domain": "grant", "sub_key": "government:research",
				"policy_name": "Government research grants 2025",
				"effective_from": "2025-01-01",
				"base_incentive_amount": 18000, "base_points": 14,
				"split_policy": "percentage_based",
				"role_percentages": [
					{"role": "principal_investigator", "percentage": 55},
					{"role": "co_investigator", "percentage": 45}
				],
				"consortium_bonus": {"amount": 3000, "points": 2}
			}`,
		},
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, out)
}

// LoadScenario writes a predefined policy history.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	sc, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown scenario %q", req.ScenarioID), nil)
		return
	}

	writes, err := h.loadScenario(r.Context(), sc, actorID(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.Log.Info("scenario loaded", "scenario", sc.ID, "policies", len(writes))
	writeJSON(w, http.StatusOK, ScenarioLoadResponse{Scenario: sc.ID, Writes: writes})
}

// =============================================================================
// SCENARIO LOADER
// =============================================================================

func (h *Handler) loadScenario(ctx context.Context, sc scenario, actor string) ([]WriteResponse, error) {
	writes := make([]WriteResponse, 0, len(sc.documents))
	for i, doc := range sc.documents {
		p, err := h.Factory.ParsePolicy([]byte(doc))
		if err != nil {
			return nil, fmt.Errorf("scenario %s document %d: %w", sc.ID, i, err)
		}
		res, err := h.Service.CreatePolicy(ctx, p, actor)
		if err != nil {
			return nil, fmt.Errorf("scenario %s document %d: %w", sc.ID, i, err)
		}
		writes = append(writes, h.toWriteResponse(res))
	}
	return writes, nil
}
