package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordAccept()
	m.RecordDisconnect("quit")
	m.RecordRegistration()
	m.RecordMessage("PING", time.Millisecond)
	m.RecordParseErrors(2)
	m.RecordLineSent()
	m.RecordPersistenceError("nicks")
	m.SetPopulation(1, 1)
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordAccept()
	m.RecordAccept()
	m.RecordDisconnect("quit")
	m.RecordMessage("PRIVMSG", time.Microsecond)
	m.RecordMessage("PRIVMSG", time.Microsecond)
	m.RecordParseErrors(3)
	m.SetPopulation(4, 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConnectionsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionsOpen))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Disconnects.WithLabelValues("quit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesReceived.WithLabelValues("PRIVMSG")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ParseErrors))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.UsersOnline))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChannelsOpen))
}

func TestServer_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.RecordRegistration()

	srv := httptest.NewServer(NewServer("", reg, zap.NewNop().Sugar()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "ircd_users_registrations_total 1"), "body: %s", body)
}
