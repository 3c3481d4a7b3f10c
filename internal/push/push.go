// Package push fans a status update out to the Updates feed of every friend
// in a friend list.
package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jun/socialnet/internal/friends"
	"github.com/jun/socialnet/internal/model"
)

// ErrUnreadable is returned when a friend's record cannot be read or comes
// back empty. The fan-out stops at the first such friend.
var ErrUnreadable = errors.New("push: friend record unreadable")

// DataAPI is the admin tier of the data service.
type DataAPI interface {
	ReadEntityAdmin(ctx context.Context, table, partition, row string) (map[string]any, error)
	UpdateEntityAdmin(ctx context.Context, table, partition, row string, props map[string]string) error
}

// Observer records one finished fan-out.
type Observer interface {
	ObserveFanout(friends int, err error, elapsed time.Duration)
}

type Service struct {
	data   DataAPI
	tracer trace.Tracer
	obs    Observer
	log    *zap.Logger
}

func NewService(data DataAPI, tracer trace.Tracer, obs Observer, log *zap.Logger) *Service {
	return &Service{data: data, tracer: tracer, obs: obs, log: log}
}

// PushStatus prepends status to the Updates of every friend in list, in list
// order. The first failure aborts the remaining friends; friends already
// updated stay updated. Cancelling ctx does not interrupt a started fan-out.
func (s *Service) PushStatus(ctx context.Context, partition, row, status, list string) error {
	fl, err := friends.Parse(list)
	if err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	ctx, span := s.tracer.Start(ctx, "push.fanout", trace.WithAttributes(
		attribute.String("push.partition", partition),
		attribute.String("push.row", row),
		attribute.Int("push.friends", len(fl)),
	))
	defer span.End()

	start := time.Now()
	err = s.fanout(ctx, status, fl)
	if s.obs != nil {
		s.obs.ObserveFanout(len(fl), err, time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Service) fanout(ctx context.Context, status string, fl friends.List) error {
	for _, f := range fl {
		props, err := s.data.ReadEntityAdmin(ctx, model.DataTable, f.Country, f.Name)
		if err != nil {
			s.log.Warn("failed to read friend record", zap.Stringer("friend", f), zap.Error(err))
			return fmt.Errorf("%w: %s: %v", ErrUnreadable, f, err)
		}
		if len(props) == 0 {
			s.log.Warn("friend record is empty", zap.Stringer("friend", f))
			return fmt.Errorf("%w: %s has no properties", ErrUnreadable, f)
		}

		updates := map[string]string{model.PropUpdates: status + stringProp(props, model.PropUpdates)}
		if err := s.data.UpdateEntityAdmin(ctx, model.DataTable, f.Country, f.Name, updates); err != nil {
			s.log.Warn("failed to update friend feed", zap.Stringer("friend", f), zap.Error(err))
			return fmt.Errorf("update feed of %s: %w", f, err)
		}
	}
	return nil
}

func stringProp(props map[string]any, name string) string {
	switch v := props[name].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
