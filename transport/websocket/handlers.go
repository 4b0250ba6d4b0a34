package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gridclash/gridclash-backend/internal/apperror"
	"github.com/gridclash/gridclash-backend/internal/entity"
	"github.com/gridclash/gridclash-backend/internal/usecase"
)

func (that *Server) handleCreateMatch(_ context.Context, sess *session, msg *Message) error {
	log := that.logger.With("method", "handleCreateMatch", "playerID", sess.playerID)

	var payload CreateMatchPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if payload.PlayerName == "" {
		that.sendError(sess.client, apperror.KindInternal, "player_name is required")
		return nil
	}

	if that.boundToActiveMatch(sess) {
		that.sendError(sess.client, apperror.KindInternal, "connection is already bound to a match")
		return nil
	}

	state, err := that.matches.CreateMatch(sess.playerID, payload.PlayerName)
	if err != nil {
		log.Error("failed to create match", "error", err)
		that.sendError(sess.client, apperror.Kind(err), err.Error())
		return nil
	}

	sess.matchID = state.ID

	slot := state.SlotByPlayer(sess.playerID)

	return that.sendMessage(sess.client, ActionMatchCreated, MatchCreatedPayload{
		MatchID:        state.ID,
		Mark:           slot.Mark,
		ReconnectToken: slot.ReconnectToken,
	})
}

func (that *Server) handleJoinMatch(_ context.Context, sess *session, msg *Message) error {
	log := that.logger.With("method", "handleJoinMatch", "playerID", sess.playerID)

	var payload JoinMatchPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if payload.MatchID == "" || payload.PlayerName == "" {
		that.sendError(sess.client, apperror.KindInternal, "match_id and player_name are required")
		return nil
	}

	if that.boundToActiveMatch(sess) {
		that.sendError(sess.client, apperror.KindInternal, "connection is already bound to a match")
		return nil
	}

	state, err := that.matches.JoinMatch(payload.MatchID, sess.playerID, payload.PlayerName)
	if err != nil {
		log.Error("failed to join match", "matchID", payload.MatchID, "error", err)
		that.sendError(sess.client, apperror.Kind(err), err.Error())
		return nil
	}

	sess.matchID = state.ID

	return that.sendMessage(sess.client, ActionMatchJoined, matchJoinedPayload(state, sess.playerID))
}

func (that *Server) handleMakeMove(ctx context.Context, sess *session, msg *Message) error {
	log := that.logger.With("method", "handleMakeMove", "playerID", sess.playerID)

	var payload MakeMovePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if payload.Cell == nil {
		that.sendError(sess.client, apperror.KindInternal, "cell is required")
		return nil
	}

	if sess.matchID == "" {
		that.sendError(sess.client, apperror.Kind(apperror.ErrNotInMatch), apperror.ErrNotInMatch.Error())
		return nil
	}

	// Success needs no direct reply: the move fan-out reaches this
	// connection too, in causal order with the opponent's view.
	if _, err := that.matches.MakeMove(ctx, sess.matchID, sess.playerID, *payload.Cell); err != nil {
		log.Error("failed to make move", "matchID", sess.matchID, "error", err)
		that.sendError(sess.client, apperror.Kind(err), err.Error())
	}

	return nil
}

func (that *Server) handleReconnect(_ context.Context, sess *session, msg *Message) error {
	log := that.logger.With("method", "handleReconnect")

	var payload ReconnectPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if payload.MatchID == "" || payload.ReconnectToken == "" {
		that.sendError(sess.client, apperror.KindInternal, "match_id and reconnect_token are required")
		return nil
	}

	if that.boundToActiveMatch(sess) {
		that.sendError(sess.client, apperror.KindInternal, "connection is already bound to a match")
		return nil
	}

	state, playerID, err := that.matches.Reconnect(payload.MatchID, payload.ReconnectToken)
	if err != nil {
		log.Error("failed to reconnect", "matchID", payload.MatchID, "error", err)
		that.sendError(sess.client, apperror.Kind(err), err.Error())
		return nil
	}

	// The connection adopts the slot's recorded identity so match events
	// route to it from now on.
	that.unregisterConnection(sess.playerID)
	sess.playerID = playerID
	sess.matchID = state.ID
	that.registerConnection(sess.playerID, sess.client)

	log.Info("player reconnected", "matchID", state.ID, "playerID", playerID)

	return that.sendMessage(sess.client, ActionMatchJoined, matchJoinedPayload(state, playerID))
}

func (that *Server) handleLeaveMatch(ctx context.Context, sess *session, _ *Message) error {
	if sess.matchID == "" {
		that.sendError(sess.client, apperror.Kind(apperror.ErrNotInMatch), apperror.ErrNotInMatch.Error())
		return nil
	}

	that.matches.Leave(ctx, sess.matchID, sess.playerID)
	sess.matchID = ""

	return nil
}

func matchJoinedPayload(state entity.MatchState, playerID string) MatchJoinedPayload {
	payload := MatchJoinedPayload{
		MatchID: state.ID,
		Board:   state.Board.Cells,
		Turn:    state.Turn,
	}

	if slot := state.SlotByPlayer(playerID); slot != nil {
		payload.Mark = slot.Mark
		payload.ReconnectToken = slot.ReconnectToken
	}

	if opponent := state.OpponentOf(playerID); opponent != nil {
		payload.OpponentName = opponent.Name
	}

	return payload
}

// encodeEvent maps a match event onto its wire action and payload.
func encodeEvent(event any) (string, any) {
	switch e := event.(type) {
	case usecase.OpponentJoinedEvent:
		return ActionOpponentJoined, OpponentJoinedPayload{
			OpponentName: e.OpponentName,
			Board:        e.Board.Cells,
			Turn:         e.Turn,
		}
	case usecase.MoveAppliedEvent:
		return ActionMoveApplied, MoveAppliedPayload{
			Board: e.Board.Cells,
			Turn:  e.Turn,
		}
	case usecase.MatchCompletedEvent:
		return ActionMatchCompleted, MatchCompletedPayload{
			Result: e.Result,
			Winner: e.Winner,
			Board:  e.Board.Cells,
		}
	case usecase.OpponentDisconnectedEvent:
		return ActionOpponentDisconnected, OpponentDisconnectedPayload{
			GraceSeconds: e.GraceSeconds,
		}
	case usecase.OpponentReconnectedEvent:
		return ActionOpponentReconnected, OpponentReconnectedPayload{}
	default:
		return "", nil
	}
}
