// SPDX-License-Identifier: MIT

package log

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithConnectionID(ctx, "ws_abc")

	logger := WithContext(ctx, zerolog.Nop())
	require.NotPanics(t, func() { logger.Info().Msg("ok") })

	require.Equal(t, "req-1", RequestIDFromContext(ctx))
	require.Equal(t, "ws_abc", ConnectionIDFromContext(ctx))
	require.Empty(t, RequestIDFromContext(context.Background()))
}

func TestFromContextFallsBackToBase(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	l2 := FromContext(nil) //nolint:staticcheck // nil context is part of the contract
	require.NotNil(t, l2)
}

func TestMiddlewarePassesThroughStatus(t *testing.T) {
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/brew", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
}
