package connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/gapbox/internal/app/notification"
)

// Client calls the control service.
type Client struct {
	addFiles    *connect.Client[structpb.Struct, structpb.Struct]
	clearPool   *connect.Client[emptypb.Empty, structpb.Struct]
	removeTrack *connect.Client[structpb.Struct, emptypb.Empty]
	listTracks  *connect.Client[emptypb.Empty, structpb.Struct]
	start       *connect.Client[emptypb.Empty, structpb.Struct]
	stop        *connect.Client[emptypb.Empty, structpb.Struct]
	skip        *connect.Client[emptypb.Empty, structpb.Struct]
	setGap      *connect.Client[structpb.Struct, structpb.Struct]
	getStatus   *connect.Client[emptypb.Empty, structpb.Struct]
	mediaAction *connect.Client[structpb.Struct, structpb.Struct]
	subscribe   *connect.Client[emptypb.Empty, structpb.Struct]
}

// NewClient creates a control client for the server at baseURL.
// A non-empty token is sent with every request.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if token != "" {
		opts = append(opts, connect.WithInterceptors(NewTokenClientInterceptor(token)))
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		addFiles:    connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+AddFilesProcedure, opts...),
		clearPool:   connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+ClearPoolProcedure, opts...),
		removeTrack: connect.NewClient[structpb.Struct, emptypb.Empty](httpClient, baseURL+RemoveTrackProcedure, opts...),
		listTracks:  connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+ListTracksProcedure, opts...),
		start:       connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+StartProcedure, opts...),
		stop:        connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+StopProcedure, opts...),
		skip:        connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+SkipProcedure, opts...),
		setGap:      connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+SetGapProcedure, opts...),
		getStatus:   connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+GetStatusProcedure, opts...),
		mediaAction: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+MediaActionProcedure, opts...),
		subscribe:   connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+SubscribeProcedure, opts...),
	}
}

// AddFiles registers files or directories on the server.
func (c *Client) AddFiles(ctx context.Context, paths []string) (*AddFilesResponse, error) {
	var out AddFilesResponse
	if err := callStruct(ctx, c.addFiles, AddFilesRequest{Paths: paths}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearPool empties the pool.
func (c *Client) ClearPool(ctx context.Context) (int, error) {
	var out ClearPoolResponse
	if err := callEmpty(ctx, c.clearPool, &out); err != nil {
		return 0, err
	}
	return out.Removed, nil
}

// RemoveTrack removes a track by name.
func (c *Client) RemoveTrack(ctx context.Context, name string) error {
	msg, err := toStruct(RemoveTrackRequest{Name: name})
	if err != nil {
		return err
	}
	_, err = c.removeTrack.CallUnary(ctx, connect.NewRequest(msg))
	return err
}

// ListTracks lists the pool.
func (c *Client) ListTracks(ctx context.Context) (*ListTracksResponse, error) {
	var out ListTracksResponse
	if err := callEmpty(ctx, c.listTracks, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Start begins playback.
func (c *Client) Start(ctx context.Context) (*Status, error) {
	return c.statusCall(ctx, c.start)
}

// Stop halts playback.
func (c *Client) Stop(ctx context.Context) (*Status, error) {
	return c.statusCall(ctx, c.stop)
}

// Skip moves to the next phase.
func (c *Client) Skip(ctx context.Context) (*Status, error) {
	return c.statusCall(ctx, c.skip)
}

// GetStatus returns the playback state.
func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	return c.statusCall(ctx, c.getStatus)
}

// SetGap sets the gap bounds in seconds.
func (c *Client) SetGap(ctx context.Context, minSeconds, maxSeconds float64) (*Status, error) {
	var out Status
	if err := callStruct(ctx, c.setGap, SetGapRequest{MinSeconds: minSeconds, MaxSeconds: maxSeconds}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MediaAction sends a media-control action.
func (c *Client) MediaAction(ctx context.Context, action string) (*Status, error) {
	var out Status
	if err := callStruct(ctx, c.mediaAction, MediaActionRequest{Action: action}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Subscribe calls fn for every notification until ctx is done, fn returns
// false, or the stream ends.
func (c *Client) Subscribe(ctx context.Context, fn func(*notification.Notification) bool) error {
	stream, err := c.subscribe.CallServerStream(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		var n notification.Notification
		if err := fromStruct(stream.Msg(), &n); err != nil {
			return err
		}
		if !fn(&n) {
			return nil
		}
	}
	return stream.Err()
}

func (c *Client) statusCall(ctx context.Context, client *connect.Client[emptypb.Empty, structpb.Struct]) (*Status, error) {
	var out Status
	if err := callEmpty(ctx, client, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func callEmpty(ctx context.Context, client *connect.Client[emptypb.Empty, structpb.Struct], out any) error {
	res, err := client.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return err
	}
	return fromStruct(res.Msg, out)
}

func callStruct(ctx context.Context, client *connect.Client[structpb.Struct, structpb.Struct], in, out any) error {
	msg, err := toStruct(in)
	if err != nil {
		return err
	}
	res, err := client.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return err
	}
	return fromStruct(res.Msg, out)
}
