package authz

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// BatchDenial pairs a denied resource ID with its public reason.
type BatchDenial struct {
	ResourceID string `json:"resource_id"`
	Reason     string `json:"reason"`
}

// BatchSummary counts batch outcomes.
type BatchSummary struct {
	Total      int `json:"total"`
	Authorized int `json:"authorized"`
	Denied     int `json:"denied"`
}

// BatchResult aggregates per-resource outcomes in input order.
type BatchResult struct {
	Authorized []string      `json:"authorized"`
	Denied     []BatchDenial `json:"denied"`
	Summary    BatchSummary  `json:"summary"`
}

// EvaluateBatch evaluates the action against every resource ID. Input is
// partitioned into chunks of Options.BatchChunkSize whose members run
// concurrently; the chunking exists only to bound pressure on the snapshot
// store. A failure evaluating one ID resolves to a denial for that ID and
// never disturbs the others.
func (e *Engine) EvaluateBatch(ctx context.Context, resourceType string, resourceIDs []string, action string, principal Principal, business BusinessContext) BatchResult {
	trace := uuid.NewString()
	e.logger.Debug("batch evaluation started",
		slog.String("batch_id", trace),
		slog.String("resource_type", resourceType),
		slog.String("action", action),
		slog.Int("count", len(resourceIDs)),
	)

	results := make([]Result, len(resourceIDs))
	size := e.opts.BatchChunkSize

	for start := 0; start < len(resourceIDs); start += size {
		end := start + size
		if end > len(resourceIDs) {
			end = len(resourceIDs)
		}
		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				results[i] = e.Evaluate(ctx, Request{
					ResourceType: resourceType,
					ResourceID:   resourceIDs[i],
					Action:       action,
					Principal:    principal,
					Business:     business,
				})
				return nil
			})
		}
		_ = g.Wait()
	}

	out := BatchResult{
		Authorized: make([]string, 0, len(resourceIDs)),
		Summary:    BatchSummary{Total: len(resourceIDs)},
	}
	for i, res := range results {
		if res.Authorized {
			out.Authorized = append(out.Authorized, resourceIDs[i])
			out.Summary.Authorized++
			continue
		}
		out.Denied = append(out.Denied, BatchDenial{ResourceID: resourceIDs[i], Reason: res.Reason})
		out.Summary.Denied++
	}

	e.logger.Debug("batch evaluation finished",
		slog.String("batch_id", trace),
		slog.Int("authorized", out.Summary.Authorized),
		slog.Int("denied", out.Summary.Denied),
	)
	return out
}
