// Package user implements the session service: sign-on and sign-off plus the
// friend and status operations a signed-on user may perform on their own
// social record.
package user

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jun/socialnet/internal/friends"
	"github.com/jun/socialnet/internal/model"
	"github.com/jun/socialnet/internal/session"
	"github.com/jun/socialnet/internal/token"
)

// DataAPI is the token-gated tier of the data service.
type DataAPI interface {
	ReadEntityAuth(ctx context.Context, table, tok, partition, row string) (map[string]any, error)
	UpdateEntityAuth(ctx context.Context, table, tok, partition, row string, props map[string]string) error
}

// AuthAPI exchanges a password for an update token and record location.
type AuthAPI interface {
	GetUpdateData(ctx context.Context, userID, password string) (model.Grant, error)
}

// PushAPI fans a status out to friends.
type PushAPI interface {
	PushStatus(ctx context.Context, partition, row, status, friends string) error
}

type Service struct {
	data     DataAPI
	auth     AuthAPI
	push     PushAPI
	sessions *session.Manager
	ttl      time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// NewService creates a Service. ttl should equal the lifetime of the tokens
// the auth service issues; a non-positive ttl means token.DefaultTTL.
func NewService(data DataAPI, auth AuthAPI, push PushAPI, sessions *session.Manager, ttl time.Duration, log *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = token.DefaultTTL
	}
	return &Service{
		data:     data,
		auth:     auth,
		push:     push,
		sessions: sessions,
		ttl:      ttl,
		now:      time.Now,
		log:      log,
	}
}

// SignOn authenticates userID and caches its session, replacing any earlier one.
func (s *Service) SignOn(ctx context.Context, userID, password string) error {
	unlock := s.sessions.Lock(userID)
	defer unlock()

	issued := s.now()
	grant, err := s.auth.GetUpdateData(ctx, userID, password)
	if err != nil {
		return err
	}
	s.sessions.Put(model.Session{
		UserID:        userID,
		Token:         grant.Token,
		DataPartition: grant.DataPartition,
		DataRow:       grant.DataRow,
		ExpiresAt:     issued.Add(s.ttl),
	})
	s.log.Info("user signed on", zap.String("user_id", userID))
	return nil
}

// SignOff discards the session of userID.
func (s *Service) SignOff(ctx context.Context, userID string) error {
	unlock := s.sessions.Lock(userID)
	defer unlock()

	if err := s.sessions.Remove(userID); err != nil {
		return err
	}
	s.log.Info("user signed off", zap.String("user_id", userID))
	return nil
}

// AddFriend appends (country, name) to the user's friend list. Duplicates
// are kept.
func (s *Service) AddFriend(ctx context.Context, userID, country, name string) error {
	return s.editFriends(ctx, userID, func(l friends.List) friends.List {
		return l.Add(friends.Friend{Country: country, Name: name})
	})
}

// UnFriend removes every (country, name) entry from the user's friend list.
func (s *Service) UnFriend(ctx context.Context, userID, country, name string) error {
	return s.editFriends(ctx, userID, func(l friends.List) friends.List {
		return l.Remove(friends.Friend{Country: country, Name: name})
	})
}

func (s *Service) editFriends(ctx context.Context, userID string, edit func(friends.List) friends.List) error {
	unlock := s.sessions.Lock(userID)
	defer unlock()

	sess, err := s.sessions.Get(userID)
	if err != nil {
		return err
	}
	list, err := s.readFriends(ctx, sess)
	if err != nil {
		return err
	}
	props := map[string]string{model.PropFriends: edit(list).String()}
	return s.data.UpdateEntityAuth(ctx, model.DataTable, sess.Token, sess.DataPartition, sess.DataRow, props)
}

// UpdateStatus stores status on the user's record and pushes it to every
// friend. A failed push does not undo the status write.
func (s *Service) UpdateStatus(ctx context.Context, userID, status string) error {
	unlock := s.sessions.Lock(userID)
	defer unlock()

	sess, err := s.sessions.Get(userID)
	if err != nil {
		return err
	}
	list, err := s.readFriends(ctx, sess)
	if err != nil {
		return err
	}

	props := map[string]string{model.PropStatus: status}
	if err := s.data.UpdateEntityAuth(ctx, model.DataTable, sess.Token, sess.DataPartition, sess.DataRow, props); err != nil {
		return err
	}
	if err := s.push.PushStatus(ctx, sess.DataPartition, sess.DataRow, status, list.String()); err != nil {
		s.log.Warn("status stored but push failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// ReadFriendList returns the user's friend list in canonical form.
func (s *Service) ReadFriendList(ctx context.Context, userID string) (string, error) {
	unlock := s.sessions.Lock(userID)
	defer unlock()

	sess, err := s.sessions.Get(userID)
	if err != nil {
		return "", err
	}
	list, err := s.readFriends(ctx, sess)
	if err != nil {
		return "", err
	}
	return list.String(), nil
}

func (s *Service) readFriends(ctx context.Context, sess model.Session) (friends.List, error) {
	props, err := s.data.ReadEntityAuth(ctx, model.DataTable, sess.Token, sess.DataPartition, sess.DataRow)
	if err != nil {
		return nil, err
	}
	raw, _ := props[model.PropFriends].(string)
	list, err := friends.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("friend list of %s/%s: %w", sess.DataPartition, sess.DataRow, err)
	}
	return list, nil
}
