package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pkdindustries/ircd/internal/config"
	"pkdindustries/ircd/internal/store"
	"pkdindustries/ircd/internal/stream"
	mocktest "pkdindustries/ircd/internal/testing"
)

const readTimeout = 3 * time.Second

type testServer struct {
	srv    *Server
	addr   string
	cancel context.CancelFunc
	done   chan error
}

func startServer(t *testing.T, cfg *config.Configuration) *testServer {
	t.Helper()
	srv, err := New(cfg, Options{Version: "test", Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{srv: srv, cancel: cancel, done: make(chan error, 1)}
	go func() { ts.done <- srv.Run(ctx) }()

	addr := srv.Addr()
	require.NotNil(t, addr, "server failed to listen")
	ts.addr = addr.String()

	t.Cleanup(func() { ts.stop(t) })
	return ts
}

// stop cancels the server and waits for Run to return. It is safe to call
// more than once.
func (ts *testServer) stop(t *testing.T) {
	t.Helper()
	ts.cancel()
	select {
	case err, ok := <-ts.done:
		if ok {
			assert.NoError(t, err)
			close(ts.done)
		}
	case <-time.After(10 * time.Second):
		t.Error("server did not stop")
	}
}

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, ts *testServer) *client {
	t.Helper()
	conn, err := net.Dial("tcp", ts.addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

// send writes all lines in a single write.
func (c *client) send(lines ...string) {
	c.t.Helper()
	_, err := io.WriteString(c.conn, strings.Join(lines, "\r\n")+"\r\n")
	require.NoError(c.t, err)
}

func (c *client) readLine() (string, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	require.True(c.t, strings.HasSuffix(line, "\r\n"), "line not CRLF terminated: %q", line)
	return strings.TrimSuffix(line, "\r\n"), nil
}

func (c *client) next() string {
	c.t.Helper()
	line, err := c.readLine()
	require.NoError(c.t, err)
	return line
}

// until reads lines until one has the given verb and returns it.
func (c *client) until(verb string) string {
	c.t.Helper()
	for {
		line := c.next()
		if mocktest.Verb(line) == verb {
			return line
		}
	}
}

// closed asserts the server closes the connection without sending more.
func (c *client) closed() {
	c.t.Helper()
	line, err := c.readLine()
	require.Error(c.t, err, "unexpected line %q", line)
	assert.True(c.t, errors.Is(err, io.EOF), "expected EOF, got %v", err)
}

func (c *client) register(nick string) {
	c.t.Helper()
	c.send("NICK "+nick, "USER "+nick+" 0 * :Real "+nick)
	c.until("422")
}

func TestServer_RegistrationBurst(t *testing.T) {
	ts := startServer(t, mocktest.DefaultTestConfig())
	c := dial(t, ts)

	c.send("NICK alice", "USER alice 0 * :Alice")
	var verbs []string
	for range 5 {
		verbs = append(verbs, mocktest.Verb(c.next()))
	}
	assert.Equal(t, []string{"001", "002", "003", "004", "422"}, verbs)
}

func TestServer_UnregisteredCommand(t *testing.T) {
	ts := startServer(t, mocktest.DefaultTestConfig())
	c := dial(t, ts)

	c.send("JOIN #room")
	assert.Equal(t, ":irc.test.local 451 * :You have not registered", c.next())
}

func TestServer_ChannelMessageNotEchoed(t *testing.T) {
	ts := startServer(t, mocktest.DefaultTestConfig())
	alice := dial(t, ts)
	bob := dial(t, ts)
	alice.register("alice")
	bob.register("bob")

	alice.send("JOIN #room")
	alice.until("366")
	bob.send("JOIN #room")
	bob.until("366")
	assert.Equal(t, ":bob!bob@127.0.0.1 JOIN #room", alice.next())

	alice.send("PRIVMSG #room :hello bob", "PING :sync")
	assert.Equal(t, ":alice!alice@127.0.0.1 PRIVMSG #room :hello bob", bob.next())
	assert.Equal(t, ":irc.test.local PONG irc.test.local :sync", alice.next())
}

func TestServer_NoSuchNick(t *testing.T) {
	ts := startServer(t, mocktest.DefaultTestConfig())
	c := dial(t, ts)
	c.register("alice")

	c.send("PRIVMSG nobody :hi")
	assert.Equal(t, ":irc.test.local 401 alice nobody :No such nick/channel", c.next())
}

func TestServer_NickInUse(t *testing.T) {
	ts := startServer(t, mocktest.DefaultTestConfig())
	alice := dial(t, ts)
	alice.register("alice")

	other := dial(t, ts)
	other.send("NICK Alice")
	assert.Equal(t, ":irc.test.local 433 * Alice :Nickname is already in use", other.next())
}

func TestServer_QuitClosesAfterError(t *testing.T) {
	ts := startServer(t, mocktest.DefaultTestConfig())
	alice := dial(t, ts)
	bob := dial(t, ts)
	alice.register("alice")
	bob.register("bob")
	alice.send("JOIN #room")
	alice.until("366")
	bob.send("JOIN #room")
	bob.until("366")

	alice.send("QUIT :bye now", "PRIVMSG #room :never delivered")
	assert.Equal(t, "ERROR :Closing Link: 127.0.0.1 (bye now)", alice.until("ERROR"))
	alice.closed()

	assert.Equal(t, ":alice!alice@127.0.0.1 QUIT :bye now", bob.next())
	bob.send("PING :sync")
	assert.Equal(t, "PONG", mocktest.Verb(bob.next()))
}

func TestServer_OversizedLineDisconnects(t *testing.T) {
	ts := startServer(t, mocktest.DefaultTestConfig())
	c := dial(t, ts)

	_, err := io.WriteString(c.conn, strings.Repeat("a", 512))
	require.NoError(t, err)
	assert.Equal(t, "ERROR :Closing Link: 127.0.0.1 (Line too long)", c.next())
	c.closed()
}

func TestServer_LongestLineAccepted(t *testing.T) {
	ts := startServer(t, mocktest.DefaultTestConfig())
	c := dial(t, ts)
	c.register("alice")

	token := strings.Repeat("x", 510-len("PING :"))
	c.send("PING :" + token)
	line := c.next()
	assert.Equal(t, "PONG", mocktest.Verb(line))
	assert.LessOrEqual(t, len(line)+2, 512)
}

func TestServer_ChannelLifecycle(t *testing.T) {
	ts := startServer(t, mocktest.DefaultTestConfig())
	alice := dial(t, ts)
	bob := dial(t, ts)
	alice.register("alice")
	bob.register("bob")

	alice.send("JOIN #tmp")
	assert.Equal(t, ":irc.test.local 353 alice = #tmp :@alice", alice.until("353"))
	alice.until("366")

	bob.send("LIST")
	assert.Equal(t, ":irc.test.local 322 bob #tmp 1 :", bob.until("322"))
	bob.until("323")

	alice.send("PART #tmp")
	alice.until("PART")

	bob.send("LIST")
	bob.until("321")
	assert.Equal(t, "323", mocktest.Verb(bob.next()))
}

func TestServer_DisconnectBroadcastsQuit(t *testing.T) {
	ts := startServer(t, mocktest.DefaultTestConfig())
	alice := dial(t, ts)
	bob := dial(t, ts)
	alice.register("alice")
	bob.register("bob")
	alice.send("JOIN #room")
	alice.until("366")
	bob.send("JOIN #room")
	bob.until("366")

	assert.Equal(t, ":bob!bob@127.0.0.1 JOIN #room", alice.next())

	alice.conn.Close()
	assert.Equal(t, ":alice!alice@127.0.0.1 QUIT :Connection closed", bob.next())

	bob.send("NAMES #room")
	assert.Equal(t, ":irc.test.local 353 bob = #room :bob", bob.next())
}

func TestServer_ResetIsConnectionClosed(t *testing.T) {
	ts := startServer(t, mocktest.DefaultTestConfig())
	alice := dial(t, ts)
	bob := dial(t, ts)
	alice.register("alice")
	bob.register("bob")
	alice.send("JOIN #room")
	alice.until("366")
	bob.send("JOIN #room")
	bob.until("366")

	// Unread output and a zero linger make the close a reset.
	tcp, ok := alice.conn.(*net.TCPConn)
	require.True(t, ok)
	require.NoError(t, tcp.SetLinger(0))
	alice.conn.Close()

	assert.Equal(t, ":alice!alice@127.0.0.1 QUIT :Connection closed", bob.next())
}

func TestFailureReason(t *testing.T) {
	reset := &net.OpError{Op: "write", Net: "tcp", Err: os.NewSyscallError("write", syscall.ECONNRESET)}
	tests := []struct {
		name string
		from pump
		err  error
		want string
	}{
		{"peer hung up", reader, stream.ErrClosed, reasonClosed},
		{"read failure", reader, errors.New("bad descriptor"), reasonReadError},
		{"write reset", writer, reset, reasonWriteError},
		{"write stalled", writer, errWriteStalled, reasonWriteError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, failureReason(tt.from, tt.err))
			assert.Equal(t, tt.want, disconnectLabel(tt.want))
		})
	}
}

func TestServer_Keepalive(t *testing.T) {
	cfg := mocktest.DefaultTestConfig()
	cfg.Timers.PingInterval = 100 * time.Millisecond
	cfg.Timers.PingTimeout = 200 * time.Millisecond
	ts := startServer(t, cfg)

	answers := dial(t, ts)
	answers.register("alice")
	assert.Equal(t, "PING :irc.test.local", answers.next())
	answers.send("PONG :irc.test.local")
	assert.Equal(t, "PING :irc.test.local", answers.next())

	silent := dial(t, ts)
	silent.register("bob")
	assert.Equal(t, "PING :irc.test.local", silent.next())
	assert.Equal(t, "ERROR :Closing Link: 127.0.0.1 (Ping timeout)", silent.next())
	silent.closed()
}

func TestServer_ShutdownDrainsAndPersists(t *testing.T) {
	dir := t.TempDir()
	cfg := mocktest.DefaultTestConfig()
	cfg.Files.Nicks = filepath.Join(dir, "nicks")
	cfg.Files.Channels = filepath.Join(dir, "channels")
	ts := startServer(t, cfg)

	c := dial(t, ts)
	c.register("alice")
	c.send("NICK alicia", "JOIN #stay", "TOPIC #stay :still here")
	c.until("TOPIC")

	ts.stop(t)
	assert.Equal(t, "ERROR :Closing Link: 127.0.0.1 (Server shutting down)", c.next())
	c.closed()

	history, err := store.LoadNicks(cfg.Files.Nicks)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"alice": {"alice", "alicia"}}, history)

	data, err := os.ReadFile(cfg.Files.Channels)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "#stay "), "got %q", data)
	assert.True(t, strings.HasSuffix(string(data), " 0 :still here\n"), "got %q", data)
}

func TestServer_RestoresHistoryOnStart(t *testing.T) {
	dir := t.TempDir()
	cfg := mocktest.DefaultTestConfig()
	cfg.Files.Nicks = filepath.Join(dir, "nicks")
	require.NoError(t, store.SaveNicks(cfg.Files.Nicks, map[string][]string{"carol": {"caz"}}))
	ts := startServer(t, cfg)

	c := dial(t, ts)
	c.send("USER mallory 0 * :Mallory", "NICK caz")
	assert.Equal(t, ":irc.test.local 433 * caz :Nickname is already in use", c.next())

	owner := dial(t, ts)
	owner.send("USER carol 0 * :Carol")
	assert.Equal(t, ":irc.test.local 001 caz :Welcome to the Internet Relay Network caz!carol@127.0.0.1", owner.next())
}

func TestServer_ListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := mocktest.DefaultTestConfig()
	cfg.Server.Port = ln.Addr().(*net.TCPAddr).Port
	srv, err := New(cfg, Options{Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)

	err = srv.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, srv.Addr())
}

// flakyListener fails with errs before handing out conns, and reports
// net.ErrClosed once closed.
type flakyListener struct {
	errs  []error
	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

func (l *flakyListener) Accept() (net.Conn, error) {
	if len(l.errs) > 0 {
		err := l.errs[0]
		l.errs = l.errs[1:]
		return nil, err
	}
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *flakyListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *flakyListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

func TestServer_AcceptRetriesTransientErrors(t *testing.T) {
	srv, err := New(mocktest.DefaultTestConfig(), Options{Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)

	emfile := &net.OpError{Op: "accept", Net: "tcp", Err: os.NewSyscallError("accept", syscall.EMFILE)}
	ln := &flakyListener{
		errs:  []error{emfile, emfile, emfile},
		conns: make(chan net.Conn, 1),
		done:  make(chan struct{}),
	}
	srv.listener = ln

	server, peer := net.Pipe()
	defer server.Close()
	defer peer.Close()
	ln.conns <- server

	errc := make(chan error, 1)
	go func() { errc <- srv.accept(context.Background()) }()

	select {
	case ev := <-srv.events:
		assert.Equal(t, evAccepted, ev.kind)
		assert.Same(t, server, ev.netConn)
	case <-time.After(readTimeout):
		t.Fatal("connection not accepted after transient errors")
	}

	ln.Close()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, net.ErrClosed)
	case <-time.After(readTimeout):
		t.Fatal("accept did not stop on a closed listener")
	}
}
