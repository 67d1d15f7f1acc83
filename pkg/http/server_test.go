package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingHandler struct{}

func (pingHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/ping", func(c echo.Context) error { return SuccessResponse(c, "pong") })
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestServerServesRoutesAndHealth(t *testing.T) {
	port := freePort(t)
	s := NewServer(pingHandler{}, WithHost("127.0.0.1"), WithPort(port), WithCORS(false))
	require.NoError(t, s.Start())
	defer s.Stop(context.Background())

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(base + "/api/ping")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerStartReportsBindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s := NewServer(nil, WithHost("127.0.0.1"), WithPort(ln.Addr().(*net.TCPAddr).Port),
		WithTimeouts(time.Second, time.Second, time.Second))
	assert.Error(t, s.Start())
}
