package connectutil

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/pitabwire/frame/security"
	securityhttp "github.com/pitabwire/frame/security/interceptors/httptor"
)

// conversational messages name the conversation they address, which is
// added to the RPC log line.
type conversational interface {
	Conversation() string
}

// DefaultOptions returns the handler options without authentication: the
// JSON codec and request logging. Production servers wrap the mux with
// AuthenticatedHTTPMiddleware.
func DefaultOptions() []connect.HandlerOption {
	return []connect.HandlerOption{
		connect.WithCodec(JSONCodec{}),
		connect.WithInterceptors(NewLoggingInterceptor()),
	}
}

// AuthenticatedHTTPMiddleware validates bearer tokens with frame's
// authenticator before any procedure runs. Authentication happens at the HTTP
// layer because the service messages are plain JSON structs, which frame's
// protobuf validation interceptors cannot inspect.
func AuthenticatedHTTPMiddleware(handler http.Handler, authenticator security.Authenticator) http.Handler {
	return securityhttp.AuthenticationMiddleware(handler, authenticator)
}

// DefaultClientOptions returns the client options matching DefaultOptions.
func DefaultClientOptions() []connect.ClientOption {
	return []connect.ClientOption{
		connect.WithCodec(JSONCodec{}),
		connect.WithInterceptors(NewLoggingInterceptor()),
	}
}

type loggingInterceptor struct{}

// NewLoggingInterceptor creates an interceptor that logs the procedure,
// duration, conversation and error of every call.
func NewLoggingInterceptor() connect.Interceptor {
	return &loggingInterceptor{}
}

func (l *loggingInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		start := time.Now()
		resp, err := next(ctx, req)

		attrs := []any{
			slog.String("procedure", req.Spec().Procedure),
			slog.Duration("duration", time.Since(start)),
		}
		if c, ok := req.Any().(conversational); ok && c.Conversation() != "" {
			attrs = append(attrs, slog.String("conversation_id", c.Conversation()))
		}

		if err != nil {
			attrs = append(attrs, slog.String("code", connect.CodeOf(err).String()), slog.String("error", err.Error()))
			slog.WarnContext(ctx, "rpc error", attrs...)
		} else {
			slog.DebugContext(ctx, "rpc ok", attrs...)
		}
		return resp, err
	}
}

func (l *loggingInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (l *loggingInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		start := time.Now()
		err := next(ctx, conn)
		attrs := []any{
			slog.String("procedure", conn.Spec().Procedure),
			slog.Duration("duration", time.Since(start)),
			slog.Bool("streaming", true),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
			slog.WarnContext(ctx, "rpc stream error", attrs...)
		}
		return err
	}
}
