package orchestrator

import (
	"cmp"
	"reflect"
	"slices"

	"github.com/ShayCichocki/waypoint/pkg/models"
)

// DetectConflicts returns one conflict for every pair of successful
// responses whose data differs structurally.
func DetectConflicts(responses []*models.Response) []models.Conflict {
	var conflicts []models.Conflict
	for i := 0; i < len(responses); i++ {
		a := responses[i]
		if a == nil || !a.Success {
			continue
		}
		for j := i + 1; j < len(responses); j++ {
			b := responses[j]
			if b == nil || !b.Success {
				continue
			}
			if !reflect.DeepEqual(a.Data, b.Data) {
				conflicts = append(conflicts, models.Conflict{
					AgentA: responder(a),
					AgentB: responder(b),
					DataA:  a.Data,
					DataB:  b.Data,
				})
			}
		}
	}
	return conflicts
}

// ResolveByPriority returns the response whose worker has the highest weight
// in priorities. Unlisted workers weigh 0 and ties keep input order.
// It returns nil for no responses.
func ResolveByPriority(responses []*models.Response, priorities map[string]int) *models.Response {
	if len(responses) == 0 {
		return nil
	}
	sorted := slices.Clone(responses)
	slices.SortStableFunc(sorted, func(a, b *models.Response) int {
		return cmp.Compare(priorities[responder(b)], priorities[responder(a)])
	})
	return sorted[0]
}

// BuildConsensus merges responses keyed by responding worker. When the
// successful responses disagree the merged response also lists the
// conflicts, and names the priority pick as MetaPreferred if priorities are
// given. It never discards a viewpoint.
func BuildConsensus(req *models.Request, responses []*models.Response, priorities map[string]int) *models.Response {
	var (
		ids  []string
		kept []*models.Response
	)
	for _, r := range responses {
		if r == nil {
			continue
		}
		ids = append(ids, responder(r))
		kept = append(kept, r)
	}
	return consensus(req, ids, kept, priorities)
}

func consensus(req *models.Request, workerIDs []string, responses []*models.Response, priorities map[string]int) *models.Response {
	if len(responses) == 0 {
		return models.Failure(req.ID, "Workflow has no workers")
	}
	resp := merge(req, workerIDs, responses)

	conflicts := DetectConflicts(responses)
	if len(conflicts) == 0 {
		return resp
	}
	resp.SetMeta(models.MetaConflicts, conflicts)

	if len(priorities) > 0 {
		var ok []*models.Response
		for _, r := range responses {
			if r.Success {
				ok = append(ok, r)
			}
		}
		if top := ResolveByPriority(ok, priorities); top != nil {
			resp.SetMeta(models.MetaPreferred, responder(top))
		}
	}
	return resp
}

// responder names the worker behind a response, including failed
// dispatches that the dispatcher attributed to the system.
func responder(r *models.Response) string {
	if r.AgentID == models.SystemAgentID {
		if id, ok := r.Metadata[models.MetaAgent].(string); ok {
			return id
		}
	}
	return r.AgentID
}
