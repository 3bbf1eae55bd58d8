package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ArcadeAI/arcade-mcp-go/internal/logger"
)

// MiddlewareContext carries one inbound request through the handler
// chain.
type MiddlewareContext struct {
	Context   context.Context
	Session   *Session
	Method    string
	RequestID any
	Params    json.RawMessage
}

// Handler processes one request and returns its result.
type Handler func(mctx *MiddlewareContext) (any, error)

// Middleware wraps a Handler with additional behavior.
type Middleware func(next Handler) Handler

// buildChain composes the dispatch pipeline: error normalization
// closest to the handler, request logging outside it, then user
// middleware with the first registered outermost.
func buildChain(h Handler, maskErrors bool, user []Middleware) Handler {
	h = errorHandlingMiddleware(maskErrors)(h)
	h = requestLoggingMiddleware()(h)
	for i := len(user) - 1; i >= 0; i-- {
		h = user[i](h)
	}
	return h
}

// errorHandlingMiddleware converts handler errors into protocol errors
// so everything above the handler sees normalized failures.
func errorHandlingMiddleware(maskErrors bool) Middleware {
	return func(next Handler) Handler {
		return func(mctx *MiddlewareContext) (any, error) {
			result, err := next(mctx)
			if err != nil {
				return nil, mapError(err, maskErrors)
			}
			return result, nil
		}
	}
}

// requestLoggingMiddleware logs each dispatched request with its
// duration and outcome.
func requestLoggingMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(mctx *MiddlewareContext) (any, error) {
			start := time.Now()
			result, err := next(mctx)
			duration := time.Since(start)

			sessionID := ""
			if mctx.Session != nil {
				sessionID = mctx.Session.ID
			}
			if err != nil {
				logger.Warn("Request %s failed after %s (id=%v session=%s): %v", mctx.Method, duration, mctx.RequestID, sessionID, err)
			} else {
				logger.Debug("Request %s completed in %s (id=%v session=%s)", mctx.Method, duration, mctx.RequestID, sessionID)
			}
			return result, err
		}
	}
}
