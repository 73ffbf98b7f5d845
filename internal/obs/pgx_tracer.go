package obs

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxStatementAttr = 300

// PGXTracer implements pgx.QueryTracer, wrapping each statement in a span.
// The state-machine transitions are single conditional UPDATEs, so the span
// per statement is also the span per transition attempt.
type PGXTracer struct{}

func (PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	ctx, span := otel.Tracer("db.pgx").Start(ctx, "pgx.query")
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
	}
	if sql := strings.TrimSpace(data.SQL); sql != "" {
		if len(sql) > maxStatementAttr {
			attrs = append(attrs, attribute.String("db.statement", sql[:maxStatementAttr]+"..."))
		} else {
			attrs = append(attrs, attribute.String("db.statement", sql))
		}
		attrs = append(attrs, attribute.String("db.operation", strings.Fields(sql)[0]))
	}
	span.SetAttributes(attrs...)
	return ctx
}

func (PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span := trace.SpanFromContext(ctx)
	if data.Err != nil {
		span.RecordError(data.Err)
	}
	span.End()
}
