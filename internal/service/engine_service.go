package service

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"connectrpc.com/connect"

	"github.com/guildops/challenge-engine/internal/engine"
	"github.com/guildops/challenge-engine/internal/model"
)

// EngineServer exposes the engine over connect
type EngineServer struct {
	engine *engine.Engine
}

// NewEngineServer creates a new EngineServer instance
func NewEngineServer(eng *engine.Engine) *EngineServer {
	return &EngineServer{engine: eng}
}

// Routes returns the handler for each procedure, ready to mount on a mux.
func (s *EngineServer) Routes() map[string]http.Handler {
	codec := WithJSONCodec()
	return map[string]http.Handler{
		GetInputProcedure:            connect.NewUnaryHandler(GetInputProcedure, s.GetInput, codec),
		SubmitProcedure:              connect.NewUnaryHandler(SubmitProcedure, s.Submit, codec),
		InvalidateChallengeProcedure: connect.NewUnaryHandler(InvalidateChallengeProcedure, s.InvalidateChallenge, codec),
		LeaderboardProcedure:         connect.NewUnaryHandler(LeaderboardProcedure, s.Leaderboard, codec),
	}
}

// GetInput returns a participant's input payload for a released challenge
func (s *EngineServer) GetInput(
	ctx context.Context,
	req *connect.Request[GetInputRequest],
) (*connect.Response[GetInputResponse], error) {
	payload, err := s.engine.GetInput(ctx, req.Msg.CampaignID, req.Msg.ChallengeID, req.Msg.RequesterID)
	if err != nil {
		return nil, asConnectError(err)
	}

	return connect.NewResponse(&GetInputResponse{InputPayload: payload}), nil
}

// Submit validates and scores a submitted answer
func (s *EngineServer) Submit(
	ctx context.Context,
	req *connect.Request[SubmitRequest],
) (*connect.Response[SubmitResponse], error) {
	res, err := s.engine.Submit(ctx, req.Msg.CampaignID, req.Msg.ChallengeID, req.Msg.RequesterID, req.Msg.Answer)
	if err != nil {
		return nil, asConnectError(err)
	}

	return connect.NewResponse(&SubmitResponse{
		Accepted: res.Accepted,
		Points:   res.Points,
	}), nil
}

// InvalidateChallenge marks a challenge's cached inputs stale
func (s *EngineServer) InvalidateChallenge(
	ctx context.Context,
	req *connect.Request[InvalidateChallengeRequest],
) (*connect.Response[InvalidateChallengeResponse], error) {
	rows, err := s.engine.InvalidateChallenge(ctx, req.Msg.ChallengeID)
	if err != nil {
		return nil, asConnectError(err)
	}

	return connect.NewResponse(&InvalidateChallengeResponse{InvalidatedRows: rows}), nil
}

// Leaderboard returns a campaign's current rankings
func (s *EngineServer) Leaderboard(
	ctx context.Context,
	req *connect.Request[LeaderboardRequest],
) (*connect.Response[LeaderboardResponse], error) {
	rows, err := s.engine.Leaderboard(ctx, req.Msg.CampaignID)
	if err != nil {
		return nil, asConnectError(err)
	}

	entries := make([]LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, LeaderboardEntry{
			ParticipantID:   row.ParticipantID,
			ParticipantType: row.ParticipantType,
			TotalPoints:     row.TotalPoints,
		})
	}

	return connect.NewResponse(&LeaderboardResponse{Entries: entries}), nil
}

// asConnectError maps the engine's error taxonomy onto connect codes.
func asConnectError(err error) error {
	var (
		notFound      *model.NotFoundError
		notReleased   *model.NotReleasedError
		noSquad       *model.NoSquadError
		generation    *model.GenerationError
		rateLimited   *model.RateLimitError
		alreadySolved *model.AlreadySolvedError
		state         *model.StateError
	)

	switch {
	case errors.As(err, &notFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.As(err, &notReleased):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.As(err, &noSquad):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.As(err, &generation):
		// Retryable: no cache row was created.
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.As(err, &rateLimited):
		cerr := connect.NewError(connect.CodeResourceExhausted, err)
		cerr.Meta().Set("Retry-After", strconv.FormatInt(int64(rateLimited.RetryAfter.Seconds()+0.999), 10))
		return cerr
	case errors.As(err, &alreadySolved):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.As(err, &state):
		return connect.NewError(connect.CodeInvalidArgument, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
