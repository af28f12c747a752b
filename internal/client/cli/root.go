package cli

import (
	"context"
	"io"

	"github.com/mirokugang/mukon/internal/client/config"
	"github.com/spf13/cobra"
)

// Options lets tests replace the process streams and the ledger dialer.
type Options struct {
	In        io.Reader
	Out       io.Writer
	NewClient ClientFactory
}

// Root is the mukon command tree together with the App its commands share.
type Root struct {
	Command *cobra.Command
	app     *App
}

// Execute runs args and releases whatever the command opened, whether or not
// it failed.
func (r *Root) Execute(ctx context.Context, args []string) error {
	r.Command.SetArgs(args)
	err := r.Command.ExecuteContext(ctx)
	if r.app != nil {
		if cerr := r.app.Close(); err == nil {
			err = cerr
		}
		r.app = nil
	}
	return err
}

// NewRootCommand builds the mukon command tree. Persistent flags override
// the config file and environment.
func NewRootCommand(opts Options) *Root {
	var (
		configPath string
		home       string
		ledger     string
		relayURL   string
	)
	r := &Root{}

	root := &cobra.Command{
		Use:           "mukon",
		Short:         "Peer directory and chat client for the mukon ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if home != "" {
				cfg.HomeDir = home
			}
			if ledger != "" {
				cfg.LedgerAddr = ledger
			}
			if relayURL != "" {
				cfg.RelayURL = relayURL
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			r.app = NewApp(cfg, opts.In, opts.Out, opts.NewClient)
			return nil
		},
	}
	r.Command = root

	root.SetIn(opts.In)
	root.SetOut(opts.Out)
	root.SetErr(opts.Out)

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (yaml or json)")
	root.PersistentFlags().StringVar(&home, "home", "", "data directory (default ~/.mukon)")
	root.PersistentFlags().StringVar(&ledger, "ledger", "", "ledger gRPC address")
	root.PersistentFlags().StringVar(&relayURL, "relay", "", "relay websocket URL")

	get := func() *App { return r.app }
	root.AddCommand(
		keygenCmd(get),
		whoamiCmd(get),
		registerCmd(get),
		updateProfileCmd(get),
		peerCmd(get, "invite", "Invite a peer", inviteAction),
		peerCmd(get, "accept", "Accept a peer's invitation", acceptAction),
		peerCmd(get, "reject", "Reject a peer's invitation", rejectAction),
		showCmd(get),
		contactsCmd(get),
		avatarCmd(get),
		chatCmd(get),
	)
	return r
}

// Execute runs the command tree against the process streams.
func Execute(ctx context.Context, in io.Reader, out io.Writer, args []string) error {
	return NewRootCommand(Options{In: in, Out: out}).Execute(ctx, args)
}
