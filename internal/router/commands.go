package router

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mtgturn/turnserver/internal/apperr"
	"github.com/mtgturn/turnserver/internal/session"
)

func unmarshal(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return apperr.Validation("missing command payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.Validation("malformed command payload")
	}
	return nil
}

// handleActivePlayerOp covers the targeting-flow ops that only the
// client who claimed the active player may initiate/resolve: entering
// selection, confirming, and cancelling.
func (r *Router) handleActivePlayerOp(ctx context.Context, clientID, sessionID string, op func(*session.Session, time.Time) error) error {
	return r.run(ctx, sessionID, func(s *session.Session, now time.Time) error {
		if activePlayerOwner(s) != clientID {
			return apperr.AuthDenied(apperr.MsgNotAuthorized)
		}
		return op(s, now)
	})
}

type playerIDData struct {
	PlayerID int `json:"playerId"`
}

// handleActivePlayerTargetOp is toggleTarget: the active player's
// claimant chooses which other player id to add/remove from the
// target set.
func (r *Router) handleActivePlayerTargetOp(ctx context.Context, clientID, sessionID string, data json.RawMessage, op func(*session.Session, int, time.Time) error) error {
	var payload playerIDData
	if err := unmarshal(data, &payload); err != nil {
		return err
	}
	return r.run(ctx, sessionID, func(s *session.Session, now time.Time) error {
		if activePlayerOwner(s) != clientID {
			return apperr.AuthDenied(apperr.MsgNotAuthorized)
		}
		return op(s, payload.PlayerID, now)
	})
}

// handleOwnClaimTargetOp is passTargetPriority: a target player passes
// their own priority, so the payload's playerId must match the
// caller's own claim.
func (r *Router) handleOwnClaimTargetOp(ctx context.Context, clientID, sessionID string, data json.RawMessage, op func(*session.Session, int, time.Time) error) error {
	var payload playerIDData
	if err := unmarshal(data, &payload); err != nil {
		return err
	}
	return r.run(ctx, sessionID, func(s *session.Session, now time.Time) error {
		id, ok := claimedPlayerID(s, clientID)
		if !ok || id != payload.PlayerID {
			return apperr.AuthDenied(apperr.MsgNotAuthorized)
		}
		return op(s, payload.PlayerID, now)
	})
}

// handleAdminPlayerOp covers addPenalty/eliminate/revivePlayer: owner
// only, target player id from the payload.
func (r *Router) handleAdminPlayerOp(ctx context.Context, clientID, sessionID, cmdType string, data json.RawMessage, op func(*session.Session, int, time.Time) error) error {
	var payload playerIDData
	if err := unmarshal(data, &payload); err != nil {
		return err
	}
	return r.run(ctx, sessionID, func(s *session.Session, now time.Time) error {
		if !isOwner(s, clientID) {
			return apperr.AuthDenied(apperr.MsgNotAuthorized)
		}
		return op(s, payload.PlayerID, now)
	})
}

func (r *Router) handleKickPlayer(ctx context.Context, clientID, sessionID string, data json.RawMessage) error {
	var payload playerIDData
	if err := unmarshal(data, &payload); err != nil {
		return err
	}
	var evictedClient string
	return r.run(ctx, sessionID, func(s *session.Session, now time.Time) error {
		if !isOwner(s, clientID) {
			return apperr.AuthDenied(apperr.MsgNotAuthorized)
		}
		err := s.KickPlayer(payload.PlayerID, now, func(cid string) { evictedClient = cid })
		if err != nil {
			return err
		}
		if evictedClient != "" {
			r.broadcaster.Send(evictedClient, Event{Type: "kicked", Data: map[string]int{"playerId": payload.PlayerID}})
		}
		return nil
	})
}

func (r *Router) handleSwitch(ctx context.Context, clientID, sessionID string, data json.RawMessage) error {
	var payload playerIDData
	if err := unmarshal(data, &payload); err != nil {
		return err
	}
	return r.run(ctx, sessionID, func(s *session.Session, now time.Time) error {
		if !authSwitchPlayer(s, clientID) {
			return apperr.AuthDenied(apperr.MsgNotAuthorized)
		}
		return s.SwitchPlayer(payload.PlayerID, now)
	})
}

type renameData struct {
	Name string `json:"name"`
}

func (r *Router) handleRenameGame(ctx context.Context, clientID, sessionID string, data json.RawMessage) error {
	var payload renameData
	if err := unmarshal(data, &payload); err != nil {
		return err
	}
	return r.run(ctx, sessionID, func(s *session.Session, now time.Time) error {
		if !isOwner(s, clientID) {
			return apperr.AuthDenied(apperr.MsgNotAuthorized)
		}
		if err := s.RenameGame(payload.Name, now); err != nil {
			return err
		}
		r.broadcaster.Broadcast(sessionID, Event{Type: "gameRenamed", Data: map[string]string{"name": s.DisplayName}})
		return nil
	})
}

type updatePlayerData struct {
	PlayerID       int     `json:"playerId"`
	Name           *string `json:"name"`
	Time           *int64  `json:"time"`
	Life           *int    `json:"life"`
	DrunkCounter   *int    `json:"drunkCounter"`
	GenericCounter *int    `json:"genericCounter"`
	Color          *string `json:"color"`
}

func (r *Router) handleUpdatePlayer(ctx context.Context, clientID, sessionID string, data json.RawMessage) error {
	var payload updatePlayerData
	if err := unmarshal(data, &payload); err != nil {
		return err
	}
	return r.run(ctx, sessionID, func(s *session.Session, now time.Time) error {
		if !authUpdatePlayer(s, clientID, payload.PlayerID) {
			return apperr.AuthDenied(apperr.MsgNotAuthorized)
		}
		return s.UpdatePlayer(payload.PlayerID, session.PlayerUpdate{
			Name:           payload.Name,
			Time:           payload.Time,
			Life:           payload.Life,
			DrunkCounter:   payload.DrunkCounter,
			GenericCounter: payload.GenericCounter,
			Color:          payload.Color,
		}, now)
	})
}

type updateSettingsData struct {
	WarningThresholds   []int64 `json:"warningThresholds"`
	BonusTime           *int64  `json:"bonusTime"`
	TimeoutPenaltyLives *int    `json:"timeoutPenaltyLives"`
	TimeoutPenaltyDrunk *int    `json:"timeoutPenaltyDrunk"`
	TimeoutBonusTime    *int64  `json:"timeoutBonusTime"`
}

func (r *Router) handleUpdateSettings(ctx context.Context, clientID, sessionID string, data json.RawMessage) error {
	var payload updateSettingsData
	if err := unmarshal(data, &payload); err != nil {
		return err
	}
	return r.run(ctx, sessionID, func(s *session.Session, now time.Time) error {
		if !isOwner(s, clientID) {
			return apperr.AuthDenied(apperr.MsgNotAuthorized)
		}
		return s.UpdateSettings(session.SettingsUpdate{
			WarningThresholds:   payload.WarningThresholds,
			BonusTime:           payload.BonusTime,
			TimeoutPenaltyLives: payload.TimeoutPenaltyLives,
			TimeoutPenaltyDrunk: payload.TimeoutPenaltyDrunk,
			TimeoutBonusTime:    payload.TimeoutBonusTime,
		}, now)
	})
}

type resolveTimeoutChoiceData struct {
	PlayerID int    `json:"playerId"`
	Choice   string `json:"choice"`
}

func (r *Router) handleResolveTimeoutChoice(ctx context.Context, clientID, sessionID string, data json.RawMessage) error {
	var payload resolveTimeoutChoiceData
	if err := unmarshal(data, &payload); err != nil {
		return err
	}
	return r.run(ctx, sessionID, func(s *session.Session, now time.Time) error {
		id, ok := claimedPlayerID(s, clientID)
		if !ok || id != payload.PlayerID {
			return apperr.AuthDenied(apperr.MsgNotAuthorized)
		}
		return s.ResolveTimeoutChoice(payload.PlayerID, session.TimeoutChoice(payload.Choice), now)
	})
}

func (r *Router) handleClaim(ctx context.Context, clientID, sessionID string, data json.RawMessage) error {
	var payload playerIDData
	if err := unmarshal(data, &payload); err != nil {
		return err
	}
	s, err := r.registry.EnsureLoaded(ctx, sessionID)
	if err != nil {
		return err
	}
	result, err := r.coordinator.Run(ctx, sessionID, func(ctx context.Context) (interface{}, error) {
		res, err := s.Claim(payload.PlayerID, clientID, time.Now())
		if err != nil {
			return nil, err
		}
		r.persistAlways(ctx, s)
		return res, nil
	})
	if err != nil {
		return err
	}
	claimed := result.(session.ClaimResult)
	r.broadcaster.Send(clientID, Event{Type: "claimed", Data: map[string]interface{}{
		"playerId": claimed.PlayerID,
		"token":    claimed.Token,
		"gameId":   sessionID,
	}})
	r.broadcaster.Broadcast(sessionID, stateEvent(s.ToPublicState()))
	return nil
}

func (r *Router) handleUnclaim(ctx context.Context, clientID, sessionID string) error {
	return r.run(ctx, sessionID, func(s *session.Session, now time.Time) error {
		s.Unclaim(clientID, now)
		return nil
	})
}

type reconnectData struct {
	GameID   string `json:"gameId"`
	PlayerID int    `json:"playerId"`
	Token    string `json:"token"`
}

func (r *Router) handleReconnect(ctx context.Context, clientID string, data json.RawMessage) (string, error) {
	var payload reconnectData
	if err := unmarshal(data, &payload); err != nil {
		r.reject(clientID, "reconnect", err)
		return "", err
	}
	s, err := r.registry.EnsureLoaded(ctx, payload.GameID)
	if err != nil {
		r.reject(clientID, "reconnect", err)
		return "", err
	}
	result, err := r.coordinator.Run(ctx, payload.GameID, func(ctx context.Context) (interface{}, error) {
		res, err := s.Reconnect(payload.PlayerID, clientID, payload.Token, time.Now())
		if err != nil {
			return nil, err
		}
		s.MarkConnected(clientID, time.Now())
		r.persistAlways(ctx, s)
		return res, nil
	})
	if err != nil {
		r.reject(clientID, "reconnect", err)
		return "", err
	}
	reconnected := result.(session.ClaimResult)
	r.broadcaster.Send(clientID, Event{Type: "reconnected", Data: map[string]interface{}{
		"playerId": reconnected.PlayerID,
		"token":    reconnected.Token,
		"gameId":   payload.GameID,
	}})
	r.broadcaster.Broadcast(payload.GameID, stateEvent(s.ToPublicState()))
	return payload.GameID, nil
}

type joinData struct {
	GameID string `json:"gameId"`
}

func (r *Router) handleJoin(ctx context.Context, clientID string, data json.RawMessage) (string, error) {
	var payload joinData
	if err := unmarshal(data, &payload); err != nil {
		r.reject(clientID, "join", err)
		return "", err
	}
	s, err := r.registry.EnsureLoaded(ctx, payload.GameID)
	if err != nil {
		r.reject(clientID, "join", err)
		return "", err
	}
	_, err = r.coordinator.Run(ctx, payload.GameID, func(ctx context.Context) (interface{}, error) {
		s.MarkConnected(clientID, time.Now())
		if s.OwnerClientID == "" {
			s.OwnerClientID = clientID
		}
		r.persist(ctx, s)
		return nil, nil
	})
	if err != nil {
		r.reject(clientID, "join", err)
		return "", err
	}
	r.broadcaster.Send(clientID, stateEvent(s.ToPublicState()))
	return payload.GameID, nil
}

type createSettingsPayload struct {
	PlayerCount          *int     `json:"playerCount"`
	InitialTime          *int64   `json:"initialTime"`
	WarningThresholds    []int64  `json:"warningThresholds"`
	PenaltyType          *string  `json:"penaltyType"`
	PenaltyTimeDeduction *int64   `json:"penaltyTimeDeduction"`
	BonusTime            *int64   `json:"bonusTime"`
	TimeoutGracePeriod   *int64   `json:"timeoutGracePeriod"`
	TimeoutPenaltyLives  *int     `json:"timeoutPenaltyLives"`
	TimeoutPenaltyDrunk  *int     `json:"timeoutPenaltyDrunk"`
	TimeoutBonusTime     *int64   `json:"timeoutBonusTime"`
	AudioEnabled         *bool    `json:"audioEnabled"`
}

func (p createSettingsPayload) apply(base session.Settings) session.Settings {
	if p.PlayerCount != nil {
		base.PlayerCount = *p.PlayerCount
	}
	if p.InitialTime != nil {
		base.InitialTime = *p.InitialTime
	}
	if len(p.WarningThresholds) > 0 {
		base.WarningThresholds = p.WarningThresholds
	}
	if p.PenaltyType != nil {
		base.PenaltyType = session.PenaltyType(*p.PenaltyType)
	}
	if p.PenaltyTimeDeduction != nil {
		base.PenaltyTimeDeduction = *p.PenaltyTimeDeduction
	}
	if p.BonusTime != nil {
		base.BonusTime = *p.BonusTime
	}
	if p.TimeoutGracePeriod != nil {
		base.TimeoutGracePeriod = *p.TimeoutGracePeriod
	}
	if p.TimeoutPenaltyLives != nil {
		base.TimeoutPenaltyLives = *p.TimeoutPenaltyLives
	}
	if p.TimeoutPenaltyDrunk != nil {
		base.TimeoutPenaltyDrunk = *p.TimeoutPenaltyDrunk
	}
	if p.TimeoutBonusTime != nil {
		base.TimeoutBonusTime = *p.TimeoutBonusTime
	}
	if p.AudioEnabled != nil {
		base.AudioEnabled = *p.AudioEnabled
	}
	return base
}

type createData struct {
	Settings createSettingsPayload `json:"settings"`
	Mode     string                `json:"mode"`
	Preset   string                `json:"preset"`
}

func (r *Router) handleCreate(ctx context.Context, clientID string, data json.RawMessage) (string, error) {
	var payload createData
	if len(data) > 0 {
		if err := unmarshal(data, &payload); err != nil {
			r.reject(clientID, "create", err)
			return "", err
		}
	}
	settings := payload.Settings.apply(session.DefaultSettings())
	if err := settings.Validate(); err != nil {
		r.reject(clientID, "create", err)
		return "", err
	}

	result, err := r.coordinator.RunCreate(func() (interface{}, error) {
		id, err := r.registry.NewID(ctx)
		if err != nil {
			return nil, err
		}
		now := time.Now()
		var s *session.Session
		if payload.Mode == "campaign" {
			s, err = session.NewCampaign(id, settings, payload.Preset, now)
			if err != nil {
				return nil, err
			}
		} else {
			s = session.New(id, settings, now)
		}
		s.OwnerClientID = clientID
		s.MarkConnected(clientID, now)
		r.registry.Insert(s)
		r.persistAlways(ctx, s)
		return s, nil
	})
	if err != nil {
		r.reject(clientID, "create", err)
		return "", err
	}
	s := result.(*session.Session)
	r.broadcaster.Send(clientID, stateEvent(s.ToPublicState()))
	return s.ID, nil
}
