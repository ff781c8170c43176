// Package router implements the command dispatch and authorization
// layer (spec.md §4.7): validate payload shape, resolve (and lazily
// load) the target session, then run the mutation inside the
// coordinator's per-session critical section.
package router

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/mtgturn/turnserver/internal/apperr"
	"github.com/mtgturn/turnserver/internal/coordinator"
	"github.com/mtgturn/turnserver/internal/registry"
	"github.com/mtgturn/turnserver/internal/session"
	"github.com/mtgturn/turnserver/internal/store"
)

// Observer hooks command routing into metrics. Implemented by
// internal/metricsobs.
type Observer interface {
	CommandRouted(cmdType string)
	CommandRejected(cmdType string, kind apperr.Kind)
	PersistenceError()
}

type nopObserver struct{}

func (nopObserver) CommandRouted(string)                {}
func (nopObserver) CommandRejected(string, apperr.Kind) {}
func (nopObserver) PersistenceError()                   {}

// Router owns the full command table.
type Router struct {
	registry    *registry.Registry
	coordinator *coordinator.Coordinator
	store       store.Store
	broadcaster Broadcaster
	observer    Observer
	logger      *zap.Logger

	// writeThrough is true in shared-store-primary mode: every
	// mutating op saves state immediately, within the locked section
	// (spec.md §4.4). In local-durable mode, persistence is the
	// periodic flush's job instead.
	writeThrough bool
}

type Option func(*Router)

func WithObserver(o Observer) Option       { return func(r *Router) { r.observer = o } }
func WithLogger(l *zap.Logger) Option      { return func(r *Router) { r.logger = l } }
func WithWriteThrough(on bool) Option      { return func(r *Router) { r.writeThrough = on } }

func New(reg *registry.Registry, coord *coordinator.Coordinator, backend store.Store, bc Broadcaster, opts ...Option) *Router {
	r := &Router{
		registry:    reg,
		coordinator: coord,
		store:       backend,
		broadcaster: bc,
		observer:    nopObserver{},
		logger:      zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Dispatch routes one inbound command from clientID, currently bound
// to boundSessionID (empty if the client hasn't joined/created a
// session yet). It returns the session id the client should now be
// considered bound to (unchanged on error, newly set on
// create/join/reconnect, cleared to "" by nothing here — unclaim
// keeps the binding, only a transport-level leave clears it).
func (r *Router) Dispatch(ctx context.Context, clientID, boundSessionID string, cmd Command) (resolvedSessionID string, err error) {
	r.observer.CommandRouted(cmd.Type)

	switch cmd.Type {
	case "create":
		return r.handleCreate(ctx, clientID, cmd.Data)
	case "join":
		return r.handleJoin(ctx, clientID, cmd.Data)
	case "reconnect":
		return r.handleReconnect(ctx, clientID, cmd.Data)
	}

	if boundSessionID == "" {
		err := apperr.NotFound(apperr.MsgGameNotFound)
		r.reject(clientID, cmd.Type, err)
		return boundSessionID, err
	}

	switch cmd.Type {
	case "claim":
		err = r.handleClaim(ctx, clientID, boundSessionID, cmd.Data)
	case "unclaim":
		err = r.handleUnclaim(ctx, clientID, boundSessionID)
	case "start":
		err = r.handleLifecycle(ctx, clientID, boundSessionID, cmd.Type, authOwnerOrClaimed, (*session.Session).Start)
	case "pause":
		err = r.handleLifecycle(ctx, clientID, boundSessionID, cmd.Type, authOwnerOrClaimed, (*session.Session).Pause)
	case "resume":
		err = r.handleLifecycle(ctx, clientID, boundSessionID, cmd.Type, authOwnerOrClaimed, (*session.Session).Resume)
	case "reset":
		err = r.handleLifecycle(ctx, clientID, boundSessionID, cmd.Type, isOwner, (*session.Session).Reset)
	case "endGame":
		err = r.handleEndGame(ctx, clientID, boundSessionID)
	case "switch":
		err = r.handleSwitch(ctx, clientID, boundSessionID, cmd.Data)
	case "interrupt":
		err = r.handleClaimedPlayerOp(ctx, clientID, boundSessionID, cmd.Type, (*session.Session).Interrupt)
	case "passPriority":
		err = r.handleClaimedPlayerOp(ctx, clientID, boundSessionID, cmd.Type, (*session.Session).PassPriority)
	case "renameGame":
		err = r.handleRenameGame(ctx, clientID, boundSessionID, cmd.Data)
	case "updatePlayer":
		err = r.handleUpdatePlayer(ctx, clientID, boundSessionID, cmd.Data)
	case "updateSettings":
		err = r.handleUpdateSettings(ctx, clientID, boundSessionID, cmd.Data)
	case "addPenalty":
		err = r.handleAdminPlayerOp(ctx, clientID, boundSessionID, cmd.Type, cmd.Data, (*session.Session).AddPenalty)
	case "eliminate":
		err = r.handleAdminPlayerOp(ctx, clientID, boundSessionID, cmd.Type, cmd.Data, (*session.Session).Eliminate)
	case "revivePlayer":
		err = r.handleAdminPlayerOp(ctx, clientID, boundSessionID, cmd.Type, cmd.Data, (*session.Session).RevivePlayer)
	case "kickPlayer":
		err = r.handleKickPlayer(ctx, clientID, boundSessionID, cmd.Data)
	case "startTargetSelection":
		err = r.handleActivePlayerOp(ctx, clientID, boundSessionID, (*session.Session).StartTargetSelection)
	case "toggleTarget":
		err = r.handleActivePlayerTargetOp(ctx, clientID, boundSessionID, cmd.Data, (*session.Session).ToggleTarget)
	case "confirmTargets":
		err = r.handleActivePlayerOp(ctx, clientID, boundSessionID, (*session.Session).ConfirmTargets)
	case "passTargetPriority":
		err = r.handleOwnClaimTargetOp(ctx, clientID, boundSessionID, cmd.Data, (*session.Session).PassTargetPriority)
	case "cancelTargeting":
		err = r.handleActivePlayerOp(ctx, clientID, boundSessionID, (*session.Session).CancelTargeting)
	case "resolveTimeoutChoice":
		err = r.handleResolveTimeoutChoice(ctx, clientID, boundSessionID, cmd.Data)
	default:
		err = apperr.Validation("unknown command type")
	}

	if err != nil {
		r.reject(clientID, cmd.Type, err)
	}
	return boundSessionID, err
}

func (r *Router) reject(clientID, cmdType string, err error) {
	kind := apperr.KindValidation
	msg := "request failed"
	if ae, ok := apperr.As(err); ok {
		kind = ae.Kind
		msg = ae.Message
	}
	r.observer.CommandRejected(cmdType, kind)
	r.broadcaster.Send(clientID, errorEvent(msg))
}

// run executes fn under the session's coordinator lock, saves to the
// store in write-through mode, and broadcasts the resulting public
// state to the whole session on success.
func (r *Router) run(ctx context.Context, sessionID string, fn func(s *session.Session, now time.Time) error) error {
	s, err := r.registry.EnsureLoaded(ctx, sessionID)
	if err != nil {
		return err
	}
	_, err = r.coordinator.Run(ctx, sessionID, func(ctx context.Context) (interface{}, error) {
		if err := fn(s, time.Now()); err != nil {
			return nil, err
		}
		r.persist(ctx, s)
		return nil, nil
	})
	if err != nil {
		return err
	}
	r.broadcaster.Broadcast(sessionID, stateEvent(s.ToPublicState()))
	return nil
}

func (r *Router) persist(ctx context.Context, s *session.Session) {
	if !r.writeThrough {
		return
	}
	r.persistAlways(ctx, s)
}

// persistAlways saves regardless of write-through mode, for the
// critical events spec.md §4.4 flushes immediately in both backends:
// session create, and (here) claim/reconnect token rotation.
func (r *Router) persistAlways(ctx context.Context, s *session.Session) {
	persisted, err := s.ToPersisted()
	if err != nil {
		r.logger.Warn("failed to serialize session for persistence", zap.String("session_id", s.ID), zap.Error(err))
		r.observer.PersistenceError()
		return
	}
	blob, err := json.Marshal(persisted)
	if err != nil {
		r.logger.Warn("failed to marshal session for persistence", zap.String("session_id", s.ID), zap.Error(err))
		r.observer.PersistenceError()
		return
	}
	if err := r.store.Save(ctx, s.ID, blob); err != nil {
		r.logger.Warn("persistence save failed", zap.String("session_id", s.ID), zap.Error(err))
		r.observer.PersistenceError()
	}
}

func (r *Router) handleLifecycle(ctx context.Context, clientID, sessionID, cmdType string, authorize func(*session.Session, string) bool, op func(*session.Session, time.Time) error) error {
	return r.run(ctx, sessionID, func(s *session.Session, now time.Time) error {
		if !authorize(s, clientID) {
			return apperr.AuthDenied(apperr.MsgNotAuthorized)
		}
		return op(s, now)
	})
}

func (r *Router) handleEndGame(ctx context.Context, clientID, sessionID string) error {
	return r.run(ctx, sessionID, func(s *session.Session, now time.Time) error {
		if !isOwner(s, clientID) {
			return apperr.AuthDenied(apperr.MsgNotAuthorized)
		}
		s.Close(now)
		return nil
	})
}

// handleClaimedPlayerOp covers interrupt/passPriority ops
// whose acting player id is inferred from the caller's claim, not
// supplied in the payload.
func (r *Router) handleClaimedPlayerOp(ctx context.Context, clientID, sessionID, cmdType string, op func(*session.Session, int, time.Time) error) error {
	return r.run(ctx, sessionID, func(s *session.Session, now time.Time) error {
		id, ok := claimedPlayerID(s, clientID)
		if !ok {
			return apperr.AuthDenied(apperr.MsgNotAuthorized)
		}
		return op(s, id, now)
	})
}
