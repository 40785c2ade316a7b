package console

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"adminbot/internal/transport"
	"adminbot/pkg/logx"
)

// Request is one inbound operator event after decoding.
type Request struct {
	Update     transport.Update
	OperatorID int64
	Chat       transport.ChatTarget
	Text       string   // message text (empty for callbacks)
	Command    *Command // decoded callback (nil for messages)
	CallbackID string
	Log        logx.Logger
}

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger := log
					if req != nil && !req.Log.IsZero() {
						logger = req.Log
					}
					logger.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			logger := log
			if !req.Log.IsZero() {
				logger = req.Log
			}
			err := next(ctx, req)
			d := time.Since(start)

			fields := []logx.Field{
				logx.String("kind", string(req.Update.Kind)),
				logx.Int64("operator", req.OperatorID),
				logx.Duration("dur", d),
			}
			if req.Command != nil {
				fields = append(fields, logx.String("action", string(req.Command.Action)))
			}
			if err != nil {
				logger.Warn("event failed", append(fields, logx.Err(err))...)
			} else if d >= 750*time.Millisecond {
				logger.Info("event ok", fields...)
			} else {
				logger.Debug("event ok", fields...)
			}
			return err
		}
	}
}
