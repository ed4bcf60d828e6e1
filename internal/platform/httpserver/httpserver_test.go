package httpserver

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"cdigit/internal/platform/config"
)

func TestNewAppliesConfiguredTimeouts(t *testing.T) {
	h := http.NewServeMux()
	srv := New(config.ServerConfig{
		Addr:         ":9090",
		ReadTimeout:  7 * time.Second,
		WriteTimeout: 11 * time.Second,
	}, h)

	assert.Equal(t, ":9090", srv.Addr)
	assert.Equal(t, h, srv.Handler)
	assert.Equal(t, 7*time.Second, srv.ReadTimeout)
	assert.Equal(t, 11*time.Second, srv.WriteTimeout)
	assert.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
	assert.Equal(t, 2*time.Minute, srv.IdleTimeout)
}
