package connect

import (
	"context"
	"crypto/subtle"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
)

const (
	// ControlTokenHeader is the header name for the control token.
	ControlTokenHeader = "X-Control-Token"
)

// tokenInterceptor validates or attaches the control token.
type tokenInterceptor struct {
	token  string
	client bool
}

// NewTokenAuthInterceptor creates a handler interceptor that rejects requests
// whose control token does not match token.
func NewTokenAuthInterceptor(token string) connect.Interceptor {
	return &tokenInterceptor{token: token}
}

// NewTokenClientInterceptor creates a client interceptor that attaches token
// to every request.
func NewTokenClientInterceptor(token string) connect.Interceptor {
	return &tokenInterceptor{token: token, client: true}
}

func (i *tokenInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if i.client {
			req.Header().Set(ControlTokenHeader, i.token)
			return next(ctx, req)
		}
		if err := i.check(req.Header().Get(ControlTokenHeader)); err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

func (i *tokenInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		if i.client {
			conn.RequestHeader().Set(ControlTokenHeader, i.token)
		}
		return conn
	}
}

func (i *tokenInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if !i.client {
			if err := i.check(conn.RequestHeader().Get(ControlTokenHeader)); err != nil {
				return err
			}
		}
		return next(ctx, conn)
	}
}

func (i *tokenInterceptor) check(token string) error {
	if token == "" {
		return connect.NewError(connect.CodeUnauthenticated, errors.New("missing control token"))
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(i.token)) != 1 {
		return connect.NewError(connect.CodeUnauthenticated, errors.New("invalid control token"))
	}
	return nil
}
