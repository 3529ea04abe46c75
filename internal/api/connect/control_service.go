// Package connect provides the Connect RPC control service.
package connect

import (
	"context"
	"net/http"
	"sync"

	"connectrpc.com/connect"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/gapbox/internal/app/notification"
	"github.com/osa030/gapbox/internal/app/session"
	"github.com/osa030/gapbox/internal/domain/gap"
)

// ControlServiceName is the fully-qualified name of the control service.
const ControlServiceName = "gapbox.v1.ControlService"

// Procedure paths.
const (
	AddFilesProcedure    = "/" + ControlServiceName + "/AddFiles"
	ClearPoolProcedure   = "/" + ControlServiceName + "/ClearPool"
	RemoveTrackProcedure = "/" + ControlServiceName + "/RemoveTrack"
	ListTracksProcedure  = "/" + ControlServiceName + "/ListTracks"
	StartProcedure       = "/" + ControlServiceName + "/Start"
	StopProcedure        = "/" + ControlServiceName + "/Stop"
	SkipProcedure        = "/" + ControlServiceName + "/Skip"
	SetGapProcedure      = "/" + ControlServiceName + "/SetGap"
	GetStatusProcedure   = "/" + ControlServiceName + "/GetStatus"
	MediaActionProcedure = "/" + ControlServiceName + "/MediaAction"
	SubscribeProcedure   = "/" + ControlServiceName + "/Subscribe"
)

// ControlService implements the control RPCs on top of a session.
type ControlService struct {
	session *session.Manager
}

// NewControlService creates a new ControlService.
func NewControlService(s *session.Manager) *ControlService {
	return &ControlService{session: s}
}

// NewControlServiceHandler builds an HTTP handler serving every procedure.
// It returns the path prefix to mount the handler on.
func NewControlServiceHandler(svc *ControlService, opts ...connect.HandlerOption) (string, http.Handler) {
	handlers := map[string]http.Handler{
		AddFilesProcedure:    connect.NewUnaryHandler(AddFilesProcedure, svc.AddFiles, opts...),
		ClearPoolProcedure:   connect.NewUnaryHandler(ClearPoolProcedure, svc.ClearPool, opts...),
		RemoveTrackProcedure: connect.NewUnaryHandler(RemoveTrackProcedure, svc.RemoveTrack, opts...),
		ListTracksProcedure:  connect.NewUnaryHandler(ListTracksProcedure, svc.ListTracks, opts...),
		StartProcedure:       connect.NewUnaryHandler(StartProcedure, svc.Start, opts...),
		StopProcedure:        connect.NewUnaryHandler(StopProcedure, svc.Stop, opts...),
		SkipProcedure:        connect.NewUnaryHandler(SkipProcedure, svc.Skip, opts...),
		SetGapProcedure:      connect.NewUnaryHandler(SetGapProcedure, svc.SetGap, opts...),
		GetStatusProcedure:   connect.NewUnaryHandler(GetStatusProcedure, svc.GetStatus, opts...),
		MediaActionProcedure: connect.NewUnaryHandler(MediaActionProcedure, svc.MediaAction, opts...),
		SubscribeProcedure:   connect.NewServerStreamHandler(SubscribeProcedure, svc.Subscribe, opts...),
	}

	return "/" + ControlServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// AddFiles loads files from the server's file system into the pool.
func (s *ControlService) AddFiles(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var in AddFilesRequest
	if err := decodeRequest(req.Msg, &in); err != nil {
		return nil, err
	}

	added, errs := s.session.AddPaths(in.Paths)
	out := AddFilesResponse{
		Added:    toTracks(added),
		Errors:   make([]string, len(errs)),
		PoolSize: s.session.Status().PoolSize,
	}
	for i, err := range errs {
		out.Errors[i] = err.Error()
	}
	return newResponse(out)
}

// ClearPool stops playback and removes every track.
func (s *ControlService) ClearPool(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return newResponse(ClearPoolResponse{Removed: s.session.Clear()})
}

// RemoveTrack removes a single track by name.
func (s *ControlService) RemoveTrack(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[emptypb.Empty], error) {
	var in RemoveTrackRequest
	if err := decodeRequest(req.Msg, &in); err != nil {
		return nil, err
	}
	if err := s.session.Remove(ctx, in.Name); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// ListTracks lists the pool.
func (s *ControlService) ListTracks(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	tracks := s.session.Tracks()
	out := ListTracksResponse{Tracks: toTracks(tracks)}
	for _, t := range tracks {
		out.TotalDurationSeconds += t.Duration.Seconds()
	}
	return newResponse(out)
}

// Start begins shuffle playback.
func (s *ControlService) Start(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	if err := s.session.Start(ctx); err != nil {
		return nil, toConnectError(err)
	}
	return s.status()
}

// Stop halts playback.
func (s *ControlService) Stop(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	s.session.Stop()
	return s.status()
}

// Skip moves to the next phase.
func (s *ControlService) Skip(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	if err := s.session.Skip(ctx); err != nil {
		return nil, toConnectError(err)
	}
	return s.status()
}

// SetGap sets the gap bounds.
func (s *ControlService) SetGap(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var in SetGapRequest
	if err := decodeRequest(req.Msg, &in); err != nil {
		return nil, err
	}
	s.session.SetGap(gap.Spec{MinSeconds: in.MinSeconds, MaxSeconds: in.MaxSeconds})
	return s.status()
}

// GetStatus returns the playback state.
func (s *ControlService) GetStatus(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.status()
}

// MediaAction applies a media-control action.
func (s *ControlService) MediaAction(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var in MediaActionRequest
	if err := decodeRequest(req.Msg, &in); err != nil {
		return nil, err
	}
	if err := s.session.MediaAction(ctx, in.Action); err != nil {
		return nil, toConnectError(err)
	}
	return s.status()
}

// Subscribe streams notifications, starting with the current state.
func (s *ControlService) Subscribe(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
	stream *connect.ServerStream[structpb.Struct],
) error {
	adapter := &notificationStreamAdapter{stream: stream}
	if err := adapter.Send(s.session.CurrentNotification()); err != nil {
		return err
	}

	notifManager := s.session.GetNotificationManager()
	subscriptionID := notifManager.Subscribe(adapter)
	defer notifManager.Unsubscribe(subscriptionID)
	zlog.Debug().Msgf("connect: subscriber attached: id=%s", subscriptionID)

	select {
	case <-ctx.Done():
	case <-s.session.Done():
	}
	return nil
}

func (s *ControlService) status() (*connect.Response[structpb.Struct], error) {
	return newResponse(toStatus(s.session.Status()))
}

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
// Broadcast may overlap sends after a timeout, so sends are serialized.
type notificationStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[structpb.Struct]
}

func (a *notificationStreamAdapter) Send(n *notification.Notification) error {
	msg, err := toStruct(n)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream.Send(msg)
}
