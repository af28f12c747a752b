package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/client/client"
	"github.com/mirokugang/mukon/internal/client/config"
	"github.com/mirokugang/mukon/internal/cryptox"
	"github.com/mirokugang/mukon/internal/identity"
	"github.com/mirokugang/mukon/internal/logging"
	"github.com/mirokugang/mukon/internal/program"
	"github.com/mirokugang/mukon/internal/relay"
	"github.com/mirokugang/mukon/internal/server/repositories/repomanager"
	"github.com/mirokugang/mukon/internal/server/services"
	"github.com/mirokugang/mukon/internal/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inProcess implements client.Client directly on a LedgerService.
type inProcess struct {
	svc *services.LedgerService
}

func (c *inProcess) Close() error               { return nil }
func (c *inProcess) Ping(context.Context) error { return nil }

func (c *inProcess) Submit(ctx context.Context, tx *txn.Transaction) (*client.Receipt, error) {
	rc, err := c.svc.Submit(ctx, tx)
	if err != nil {
		return nil, err
	}
	return &client.Receipt{Signature: rc.Signature, Sequence: rc.Sequence}, nil
}

func (c *inProcess) Account(ctx context.Context, addr address.Address) (*program.Account, error) {
	return c.svc.GetAccount(ctx, addr)
}

func (c *inProcess) Profile(ctx context.Context, id identity.Identity) (*program.Profile, error) {
	acc, err := c.Account(ctx, address.Profile(id, address.CurrentVersion))
	if err != nil {
		return nil, err
	}
	return program.DecodeProfile(acc.Data)
}

func (c *inProcess) Directory(ctx context.Context, id identity.Identity) (*program.Directory, error) {
	acc, err := c.Account(ctx, address.Directory(id, address.CurrentVersion))
	if err != nil {
		return nil, err
	}
	return program.DecodeDirectory(acc.Data)
}

func (c *inProcess) Conversation(ctx context.Context, h address.Handle) (*program.Conversation, error) {
	acc, err := c.Account(ctx, h)
	if err != nil {
		return nil, err
	}
	return program.DecodeConversation(acc.Data)
}

func newNetwork() ClientFactory {
	net := &inProcess{svc: services.NewLedgerService(repomanager.NewMemoryRepositoryManager(), program.New(program.DefaultConfig()), logging.Nop())}
	return func(*config.Config) (client.Client, error) { return net, nil }
}

// run executes one CLI invocation and returns its output.
func run(t *testing.T, factory ClientFactory, home string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand(Options{In: strings.NewReader(""), Out: &out, NewClient: factory})
	err := root.Execute(context.Background(), append([]string{"--home", home}, args...))
	return out.String(), err
}

func mustRun(t *testing.T, factory ClientFactory, home string, args ...string) string {
	t.Helper()
	out, err := run(t, factory, home, args...)
	require.NoError(t, err, out)
	return out
}

func whoami(t *testing.T, factory ClientFactory, home string) string {
	t.Helper()
	return strings.TrimSpace(mustRun(t, factory, home, "whoami"))
}

func TestKeygen(t *testing.T) {
	t.Setenv(passphraseEnv, "correct horse")
	home := t.TempDir()
	factory := newNetwork()

	_, err := run(t, factory, home, "whoami")
	assert.ErrorIs(t, err, ErrNoKey)

	out := mustRun(t, factory, home, "keygen")
	require.True(t, strings.HasPrefix(out, "Identity created: "))
	id := strings.TrimSpace(strings.TrimPrefix(out, "Identity created: "))
	_, err = identity.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, whoami(t, factory, home))

	_, err = run(t, factory, home, "keygen")
	assert.ErrorContains(t, err, "already exists")

	mustRun(t, factory, home, "keygen", "--force")
	assert.NotEqual(t, id, whoami(t, factory, home))

	t.Setenv(passphraseEnv, "wrong")
	_, err = run(t, factory, home, "whoami")
	assert.ErrorIs(t, err, cryptox.ErrWrongPassphrase)
}

func TestDirectoryFlow(t *testing.T) {
	t.Setenv(passphraseEnv, "pw")
	factory := newNetwork()
	aliceHome, bobHome := t.TempDir(), t.TempDir()

	mustRun(t, factory, aliceHome, "keygen")
	mustRun(t, factory, bobHome, "keygen")
	alice, bob := whoami(t, factory, aliceHome), whoami(t, factory, bobHome)

	assert.Contains(t, mustRun(t, factory, aliceHome, "register", "alice"), "Registered")
	mustRun(t, factory, bobHome, "register", "bob")

	_, err := run(t, factory, aliceHome, "invite", alice)
	assert.ErrorIs(t, err, program.ErrValidation)

	mustRun(t, factory, aliceHome, "invite", bob)
	out := mustRun(t, factory, bobHome, "contacts")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "Pending")
	assert.Contains(t, out, "Incoming")

	mustRun(t, factory, bobHome, "accept", alice)

	out = mustRun(t, factory, aliceHome, "contacts")
	assert.Contains(t, out, "bob")
	assert.Contains(t, out, "Active")
	assert.Contains(t, out, "Outgoing")

	offline := mustRun(t, factory, aliceHome, "contacts", "--offline")
	assert.Equal(t, out, offline)

	show := mustRun(t, factory, aliceHome, "show", bob)
	assert.Contains(t, show, "Name:     bob")

	mustRun(t, factory, bobHome, "update-profile", "bobby")
	assert.Contains(t, mustRun(t, factory, aliceHome, "show", bob), "Name:     bobby")
}

func TestCommandErrors(t *testing.T) {
	t.Setenv(passphraseEnv, "pw")
	factory := newNetwork()
	home := t.TempDir()
	mustRun(t, factory, home, "keygen")

	_, err := run(t, factory, home, "invite", "not-an-identity")
	assert.Error(t, err)

	_, err = run(t, factory, home, "update-profile", "x", "--avatar", "a.png", "--clear-avatar")
	assert.ErrorContains(t, err, "mutually exclusive")

	_, err = run(t, factory, home, "contacts", "--offline")
	require.NoError(t, err, "empty cache lists nothing")

	failing := func(*config.Config) (client.Client, error) { return nil, errors.New("dial failed") }
	_, err = run(t, failing, home, "register", "x")
	assert.ErrorContains(t, err, "dial failed")

	_, err = run(t, factory, home, "show")
	assert.Error(t, err, "missing argument")
}

// syncBuffer is written by the chat printer goroutine while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

type fakeChat struct {
	sent     []string
	left     bool
	messages chan relay.Event
}

func (f *fakeChat) Send(_ context.Context, _ address.Handle, payload []byte) error {
	f.sent = append(f.sent, string(payload))
	return nil
}

func (f *fakeChat) Leave(context.Context, address.Handle) error {
	f.left = true
	return nil
}

func (f *fakeChat) Messages() <-chan relay.Event { return f.messages }

func TestRunChat(t *testing.T) {
	handle := address.Derive([]byte("room"))
	conn := &fakeChat{messages: make(chan relay.Event, 2)}
	conn.messages <- relay.Event{Type: relay.TypeMessage, Handle: handle.String(), From: "BobIdentityXYZ", Payload: []byte("hi alice")}
	conn.messages <- relay.Event{Type: relay.TypeMessage, Handle: "elsewhere", From: "x", Payload: []byte("ignored")}
	close(conn.messages)

	var out syncBuffer
	in := bufio.NewScanner(strings.NewReader("hello\n\n/help\nsecond\n/quit\nnever\n"))
	require.NoError(t, runChat(context.Background(), conn, handle, in, &out))

	assert.Equal(t, []string{"hello", "second"}, conn.sent)
	assert.True(t, conn.left)
	assert.Eventually(t, func() bool { return strings.Contains(out.String(), "[BobIdent] hi alice") }, time.Second, 10*time.Millisecond)
	assert.NotContains(t, out.String(), "ignored")
}

func TestRunChat_EOFLeaves(t *testing.T) {
	conn := &fakeChat{messages: make(chan relay.Event)}
	close(conn.messages)

	var out syncBuffer
	require.NoError(t, runChat(context.Background(), conn, address.Derive([]byte("room")), bufio.NewScanner(strings.NewReader("only\n")), &out))
	assert.Equal(t, []string{"only"}, conn.sent)
	assert.True(t, conn.left)
}

func TestChatPeer_ResumesLastPeer(t *testing.T) {
	home := t.TempDir()
	cfg := &config.Config{HomeDir: home, LogFormat: "text", LogLevel: "error"}
	kp, err := identity.Generate()
	require.NoError(t, err)
	bob := kp.Identity()

	a := NewApp(cfg, strings.NewReader(""), &bytes.Buffer{}, newNetwork())
	_, err = a.chatPeer(nil)
	assert.ErrorIs(t, err, ErrNoChatPeer)

	got, err := a.chatPeer([]string{bob.String()})
	require.NoError(t, err)
	assert.Equal(t, bob, got)
	require.NoError(t, a.rememberChatPeer(bob))
	require.NoError(t, a.Close())

	// a later invocation resumes from the state file
	a = NewApp(cfg, strings.NewReader(""), &bytes.Buffer{}, newNetwork())
	defer a.Close()
	got, err = a.chatPeer(nil)
	require.NoError(t, err)
	assert.Equal(t, bob, got)

	_, err = a.chatPeer([]string{"not-an-identity"})
	assert.Error(t, err)
}
