// Package admin exposes operator controls for running games over Connect.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/geoguess/go/internal/game/session"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const defaultAbortReason = "aborted by operator"

// Sessions defines what the admin service needs from the game layer
type Sessions interface {
	ActiveSessions(ctx context.Context) ([]session.Snapshot, error)
	SessionState(ctx context.Context, id uuid.UUID) (*session.Snapshot, error)
	AbortSession(ctx context.Context, id uuid.UUID, reason string) error
}

// Service implements GameAdminService
type Service struct {
	sessions Sessions
}

func NewService(sessions Sessions) *Service {
	return &Service{sessions: sessions}
}

// ListSessions returns a snapshot of every running game
func (s *Service) ListSessions(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.ListValue], error) {
	snaps, err := s.sessions.ActiveSessions(ctx)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(snaps))}
	for _, snap := range snaps {
		st, err := snapshotToProto(snap)
		if err != nil {
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		list.Values = append(list.Values, structpb.NewStructValue(st))
	}
	return connect.NewResponse(list), nil
}

// GetSession returns one running game by id
func (s *Service) GetSession(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[structpb.Struct], error) {
	id, err := uuid.Parse(req.Msg.GetValue())
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	snap, err := s.sessions.SessionState(ctx, id)
	if err != nil {
		return nil, toConnectError(err)
	}

	st, err := snapshotToProto(*snap)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(st), nil
}

// AbortSession ends a running game. The request carries session_id and an
// optional reason.
func (s *Service) AbortSession(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[emptypb.Empty], error) {
	fields := req.Msg.GetFields()
	id, err := uuid.Parse(fields["session_id"].GetStringValue())
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session_id: %w", err))
	}
	reason := fields["reason"].GetStringValue()
	if reason == "" {
		reason = defaultAbortReason
	}

	if err := s.sessions.AbortSession(ctx, id, reason); err != nil {
		return nil, toConnectError(err)
	}

	log.Info().Str("session_id", id.String()).Str("reason", reason).Msg("game aborted by admin request")
	return connect.NewResponse(&emptypb.Empty{}), nil
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, session.ErrValidation):
		return connect.NewError(connect.CodeInvalidArgument, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

func snapshotToProto(snap session.Snapshot) (*structpb.Struct, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return structpb.NewStruct(m)
}

// NewGameAdminServiceHandler builds an HTTP handler serving the admin
// procedures and returns the path to mount it on.
func NewGameAdminServiceHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler, error) {
	desc, err := serviceDescriptor()
	if err != nil {
		return "", nil, err
	}
	methods := desc.Methods()

	listSessions := connect.NewUnaryHandler(
		ListSessionsProcedure,
		svc.ListSessions,
		connect.WithSchema(methods.ByName("ListSessions")),
		connect.WithHandlerOptions(opts...),
	)
	getSession := connect.NewUnaryHandler(
		GetSessionProcedure,
		svc.GetSession,
		connect.WithSchema(methods.ByName("GetSession")),
		connect.WithHandlerOptions(opts...),
	)
	abortSession := connect.NewUnaryHandler(
		AbortSessionProcedure,
		svc.AbortSession,
		connect.WithSchema(methods.ByName("AbortSession")),
		connect.WithHandlerOptions(opts...),
	)

	return "/" + GameAdminServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case ListSessionsProcedure:
			listSessions.ServeHTTP(w, r)
		case GetSessionProcedure:
			getSession.ServeHTTP(w, r)
		case AbortSessionProcedure:
			abortSession.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	}), nil
}
