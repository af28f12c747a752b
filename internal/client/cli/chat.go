package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/client/repositories/state"
	"github.com/mirokugang/mukon/internal/identity"
	"github.com/mirokugang/mukon/internal/relay"
	"github.com/spf13/cobra"
)

func chatCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [peer-identity]",
		Short: "Chat with a peer through the relay",
		Long:  "Chat with a peer through the relay. Without a peer the last chat is resumed.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a := app()
			peer, err := a.chatPeer(args)
			if err != nil {
				return err
			}
			kp, err := a.Keys()
			if err != nil {
				return err
			}

			conn, err := relay.Dial(ctx, a.config.RelayURL, kp)
			if err != nil {
				return err
			}
			defer conn.Close()

			handle := address.Conversation(kp.Identity(), peer, a.config.SchemaVersion)
			if err := conn.Join(ctx, handle, &peer); err != nil {
				return err
			}
			if err := a.rememberChatPeer(peer); err != nil {
				a.logger.Warn(ctx, "saving last chat peer", "error", err)
			}

			a.printf("Joined conversation %s (type /quit to leave)\n", handle)
			return runChat(ctx, conn, handle, bufio.NewScanner(a.in), a.out)
		},
	}
}

const lastPeerPref = "chat.last_peer"

var ErrNoChatPeer = errors.New("no peer given and no previous chat to resume")

// chatPeer parses the peer argument, or falls back to the last peer joined.
func (a *App) chatPeer(args []string) (identity.Identity, error) {
	if len(args) > 0 {
		return identity.Parse(args[0])
	}
	st, err := a.State()
	if err != nil {
		return identity.Identity{}, err
	}
	v, err := st.Pref(lastPeerPref)
	if errors.Is(err, state.ErrNotFound) {
		return identity.Identity{}, ErrNoChatPeer
	}
	if err != nil {
		return identity.Identity{}, err
	}
	return identity.Parse(v)
}

func (a *App) rememberChatPeer(peer identity.Identity) error {
	st, err := a.State()
	if err != nil {
		return err
	}
	return st.SetPref(lastPeerPref, peer.String())
}

// chatConn is the part of a relay connection the chat loop uses.
type chatConn interface {
	Send(ctx context.Context, handle address.Handle, payload []byte) error
	Leave(ctx context.Context, handle address.Handle) error
	Messages() <-chan relay.Event
}

// lockedWriter serializes the prompt loop and the incoming message printer.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// runChat sends every input line to handle and prints messages from the
// other side until EOF or /quit.
func runChat(ctx context.Context, conn chatConn, handle address.Handle, scanner *bufio.Scanner, w io.Writer) error {
	out := &lockedWriter{w: w}

	go func() {
		for ev := range conn.Messages() {
			if ev.Handle != handle.String() {
				continue
			}
			fmt.Fprintf(out, "[%s] %s\n", shortID(ev.From), ev.Payload)
		}
	}()

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/help":
			fmt.Fprintln(out, "Type a message and press Enter. /quit leaves the conversation.")
			continue
		case "/quit", "/exit":
			return conn.Leave(ctx, handle)
		}
		if err := conn.Send(ctx, handle, []byte(line)); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return conn.Leave(ctx, handle)
}

func shortID(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}
