// File path: internal/common/telemetry/telemetry.go
package telemetry

import (
	"context"
	"expvar"
	"strings"
	"sync"
	"time"

	"github.com/jmcasey/codeloom/internal/common"
)

type spanKey struct{}

type span struct {
	name  string
	start time.Time
}

var (
	initOnce sync.Once

	vectorSearchTotal     *expvar.Int
	vectorSearchCacheHits *expvar.Int
	vectorSearchLatencyMS *expvar.Int

	classifierCacheHits  *expvar.Int
	classifierEscalation *expvar.Int
	classifierKeyword    *expvar.Int

	contextPoolDropped   *expvar.Map
	contextPoolTruncated *expvar.Map

	reconcileRedirects *expvar.Int
	reconcileDemotions *expvar.Int

	pipelineStageTotal     *expvar.Map
	pipelineStageLatencyMS *expvar.Map
	pipelineFailures       *expvar.Map
)

func ensureInit() {
	initOnce.Do(func() {
		vectorSearchTotal = expvar.NewInt("loom_vector_search_total")
		vectorSearchCacheHits = expvar.NewInt("loom_vector_search_cache_hits")
		vectorSearchLatencyMS = expvar.NewInt("loom_vector_search_latency_ms")

		classifierCacheHits = expvar.NewInt("loom_classifier_cache_hits")
		classifierEscalation = expvar.NewInt("loom_classifier_escalations")
		classifierKeyword = expvar.NewInt("loom_classifier_keyword_hits")

		contextPoolDropped = expvar.NewMap("loom_context_pool_dropped")
		contextPoolTruncated = expvar.NewMap("loom_context_pool_truncated")

		reconcileRedirects = expvar.NewInt("loom_reconcile_alias_redirects")
		reconcileDemotions = expvar.NewInt("loom_reconcile_strict_demotions")

		pipelineStageTotal = expvar.NewMap("loom_pipeline_stage_total")
		pipelineStageLatencyMS = expvar.NewMap("loom_pipeline_stage_latency_ms")
		pipelineFailures = expvar.NewMap("loom_pipeline_failures")
	})
}

// StartSpan records a debug-trace span around a unit of work. The returned
// func logs the span duration together with any attributes passed to it.
func StartSpan(ctx context.Context, name string) (context.Context, func(attrs ...interface{})) {
	ensureInit()
	sp := &span{name: name, start: time.Now()}
	ctx = context.WithValue(ctx, spanKey{}, sp)
	logger := common.Logger()
	logger.Debug("trace: start", "span", name)
	return ctx, func(attrs ...interface{}) {
		duration := time.Since(sp.start)
		logger.Debug("trace: end", append([]interface{}{"span", name, "dur", duration}, attrs...)...)
	}
}

// SpanDuration reports the elapsed time of the span carried by ctx, if any.
func SpanDuration(ctx context.Context) time.Duration {
	sp, _ := ctx.Value(spanKey{}).(*span)
	if sp == nil {
		return 0
	}
	return time.Since(sp.start)
}

// RecordVectorSearch accounts for one semantic index query.
func RecordVectorSearch(cacheHit bool, duration time.Duration) {
	ensureInit()
	vectorSearchTotal.Add(1)
	if cacheHit {
		vectorSearchCacheHits.Add(1)
	}
	if duration > 0 {
		vectorSearchLatencyMS.Add(duration.Milliseconds())
	}
}

// RecordClassification accounts for one classifier resolution by source:
// "cache", "keyword", or "escalation".
func RecordClassification(source string) {
	ensureInit()
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "cache":
		classifierCacheHits.Add(1)
	case "keyword":
		classifierKeyword.Add(1)
	case "escalation":
		classifierEscalation.Add(1)
	}
}

// RecordPoolTruncation accounts for files truncated or dropped while a
// context pool was filled against its budget.
func RecordPoolTruncation(pool string, truncated, dropped int) {
	ensureInit()
	key := strings.ToLower(strings.TrimSpace(pool))
	if key == "" {
		key = "unknown"
	}
	if truncated > 0 {
		contextPoolTruncated.Add(key, int64(truncated))
	}
	if dropped > 0 {
		contextPoolDropped.Add(key, int64(dropped))
	}
}

// RecordReconcile accounts for alias redirects and strict-mode demotions
// performed during one reconciliation.
func RecordReconcile(redirects, demotions int) {
	ensureInit()
	if redirects > 0 {
		reconcileRedirects.Add(int64(redirects))
	}
	if demotions > 0 {
		reconcileDemotions.Add(int64(demotions))
	}
}

// RecordPipelineStage accounts for one completed pipeline stage.
func RecordPipelineStage(stage string, duration time.Duration) {
	ensureInit()
	key := strings.ToLower(strings.TrimSpace(stage))
	if key == "" {
		key = "unknown"
	}
	pipelineStageTotal.Add(key, 1)
	if duration > 0 {
		pipelineStageLatencyMS.Add(key, duration.Milliseconds())
	}
}

// RecordPipelineFailure accounts for a pipeline run that terminated in the
// named stage.
func RecordPipelineFailure(stage string) {
	ensureInit()
	key := strings.ToLower(strings.TrimSpace(stage))
	if key == "" {
		key = "unknown"
	}
	pipelineFailures.Add(key, 1)
}
