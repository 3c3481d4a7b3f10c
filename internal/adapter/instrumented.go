package adapter

import (
	"context"
	"errors"
	"iter"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OpObserver records the outcome of one store call.
type OpObserver interface {
	ObserveStoreOp(op, table string, err error, elapsed time.Duration)
}

// Instrument wraps base so that every call gets a span and an observation.
func Instrument(base TableStore, tracer trace.Tracer, obs OpObserver) TableStore {
	return &instrumented{inner: base, tracer: tracer, obs: obs}
}

type instrumented struct {
	inner  TableStore
	tracer trace.Tracer
	obs    OpObserver
}

func (s *instrumented) start(ctx context.Context, op, table string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	begin := time.Now()
	ctx, span := s.tracer.Start(ctx, "store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs, attribute.String("store.table", table))...),
	)
	return ctx, func(err error) {
		// Absent entities are an answer, not a failure.
		if err != nil && !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.obs.ObserveStoreOp(op, table, err, time.Since(begin))
	}
}

func keyAttrs(partition, row string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("store.partition", partition),
		attribute.String("store.row", row),
	}
}

func (s *instrumented) CreateTable(ctx context.Context, name string) (created bool, err error) {
	ctx, done := s.start(ctx, "create_table", name)
	defer func() { done(err) }()
	return s.inner.CreateTable(ctx, name)
}

func (s *instrumented) DeleteTable(ctx context.Context, name string) (err error) {
	ctx, done := s.start(ctx, "delete_table", name)
	defer func() { done(err) }()
	return s.inner.DeleteTable(ctx, name)
}

func (s *instrumented) TableExists(ctx context.Context, name string) (ok bool, err error) {
	ctx, done := s.start(ctx, "table_exists", name)
	defer func() { done(err) }()
	return s.inner.TableExists(ctx, name)
}

func (s *instrumented) Get(ctx context.Context, table, partition, row string) (e Entity, err error) {
	ctx, done := s.start(ctx, "get", table, keyAttrs(partition, row)...)
	defer func() { done(err) }()
	return s.inner.Get(ctx, table, partition, row)
}

func (s *instrumented) Put(ctx context.Context, table string, e Entity, mode PutMode) (err error) {
	ctx, done := s.start(ctx, "put", table, append(keyAttrs(e.Partition, e.Row), attribute.String("store.mode", mode.String()))...)
	defer func() { done(err) }()
	return s.inner.Put(ctx, table, e, mode)
}

func (s *instrumented) Delete(ctx context.Context, table, partition, row string) (err error) {
	ctx, done := s.start(ctx, "delete", table, keyAttrs(partition, row)...)
	defer func() { done(err) }()
	return s.inner.Delete(ctx, table, partition, row)
}

func (s *instrumented) Query(ctx context.Context, table, partition string) iter.Seq2[Entity, error] {
	return s.iterate(ctx, "query", table, func(ctx context.Context) iter.Seq2[Entity, error] {
		return s.inner.Query(ctx, table, partition)
	}, attribute.String("store.partition", partition))
}

func (s *instrumented) Scan(ctx context.Context, table string) iter.Seq2[Entity, error] {
	return s.iterate(ctx, "scan", table, func(ctx context.Context) iter.Seq2[Entity, error] {
		return s.inner.Scan(ctx, table)
	})
}

func (s *instrumented) iterate(ctx context.Context, op, table string, seq func(context.Context) iter.Seq2[Entity, error], attrs ...attribute.KeyValue) iter.Seq2[Entity, error] {
	return func(yield func(Entity, error) bool) {
		ctx, done := s.start(ctx, op, table, attrs...)
		var (
			failed error
			n      int
		)
		for e, err := range seq(ctx) {
			if err != nil {
				failed = err
			} else {
				n++
			}
			if !yield(e, err) {
				break
			}
		}
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("store.results", n))
		done(failed)
	}
}
