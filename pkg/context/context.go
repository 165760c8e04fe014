package context

import "context"

type ContextKey string

var (
	RunIDKey   = ContextKey("X-Run-Id")
	CatalogKey = ContextKey("X-Catalog")
	RecordKey  = ContextKey("X-Record-Id")
	PhaseKey   = ContextKey("X-Phase")
)

func SetRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

func GetRunID(ctx context.Context) string {
	value, ok := ctx.Value(RunIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetCatalog(ctx context.Context, catalog string) context.Context {
	return context.WithValue(ctx, CatalogKey, catalog)
}

func GetCatalog(ctx context.Context) string {
	value, ok := ctx.Value(CatalogKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRecordID(ctx context.Context, recordID string) context.Context {
	return context.WithValue(ctx, RecordKey, recordID)
}

func GetRecordID(ctx context.Context) string {
	value, ok := ctx.Value(RecordKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, PhaseKey, phase)
}

func GetPhase(ctx context.Context) string {
	value, ok := ctx.Value(PhaseKey).(string)
	if !ok {
		return ""
	}
	return value
}

// Fields returns the run-scoped values set on ctx as structured log fields
func Fields(ctx context.Context) map[string]any {
	fields := map[string]any{}
	if runID := GetRunID(ctx); runID != "" {
		fields["run_id"] = runID
	}
	if catalog := GetCatalog(ctx); catalog != "" {
		fields["catalog"] = catalog
	}
	if recordID := GetRecordID(ctx); recordID != "" {
		fields["record_id"] = recordID
	}
	if phase := GetPhase(ctx); phase != "" {
		fields["phase"] = phase
	}
	return fields
}
