package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sujalbistaa/entrenous/internal/apperr"
	"github.com/sujalbistaa/entrenous/internal/logger"
)

func TestRespondErrorHidesInternalCause(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.ErrorLevel)
	prev := logger.Log
	logger.Log = zap.New(core)
	t.Cleanup(func() { logger.Log = prev })

	router := gin.New()
	router.GET("/posts/:id", func(c *gin.Context) {
		respondError(c, errors.New("pq: relation \"posts\" does not exist"))
	})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/posts/7", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal","message":"internal error"}`, w.Body.String())

	entries := logs.FilterField(logger.WithRoute("/posts/:id")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Request failed", entries[0].Message)
}

func TestRespondErrorUniformDenial(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, err := range []error{apperr.Forbidden(), apperr.InvalidOperation("cannot vote on your own post")} {
		router := gin.New()
		router.GET("/x", func(c *gin.Context) { respondError(c, err) })
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.JSONEq(t, `{"error":"forbidden","message":"forbidden"}`, w.Body.String())
	}
}
