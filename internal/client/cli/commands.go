package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/mirokugang/mukon/internal/client/avatar"
	"github.com/mirokugang/mukon/internal/client/client"
	"github.com/mirokugang/mukon/internal/client/services"
	"github.com/mirokugang/mukon/internal/identity"
	"github.com/spf13/cobra"
)

func keygenCmd(app func() *App) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an identity and seal it under a passphrase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := app().Keygen(force)
			if err != nil {
				return err
			}
			app().printf("Identity created: %s\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing key")
	return cmd
}

func whoamiCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print your identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := app().Keys()
			if err != nil {
				return err
			}
			app().printf("%s\n", kp.Identity())
			return nil
		},
	}
}

func printReceipt(a *App, what string, rc *client.Receipt) {
	a.printf("%s (tx %s, seq %d)\n", what, rc.Signature, rc.Sequence)
}

func registerCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "register <display-name>",
		Short: "Create your profile and peer directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := app().Messenger(cmd.Context())
			if err != nil {
				return err
			}
			rc, err := m.Register(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printReceipt(app(), "Registered", rc)
			return nil
		},
	}
}

func updateProfileCmd(app func() *App) *cobra.Command {
	var (
		avatarPath  string
		clearAvatar bool
	)
	cmd := &cobra.Command{
		Use:   "update-profile <display-name>",
		Short: "Change your display name and optionally your avatar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if avatarPath != "" && clearAvatar {
				return errors.New("--avatar and --clear-avatar are mutually exclusive")
			}
			m, err := app().Messenger(ctx)
			if err != nil {
				return err
			}

			var ref *string
			switch {
			case clearAvatar:
				empty := ""
				ref = &empty
			case avatarPath != "":
				uploaded, err := uploadAvatar(ctx, app(), avatarPath)
				if err != nil {
					return err
				}
				ref = &uploaded
			}

			rc, err := m.UpdateProfile(ctx, args[0], ref)
			if err != nil {
				return err
			}
			printReceipt(app(), "Profile updated", rc)
			return nil
		},
	}
	cmd.Flags().StringVar(&avatarPath, "avatar", "", "image file to upload as avatar")
	cmd.Flags().BoolVar(&clearAvatar, "clear-avatar", false, "remove the avatar")
	return cmd
}

func uploadAvatar(ctx context.Context, a *App, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	store, err := avatar.NewStore(ctx, a.config.Avatar())
	if err != nil {
		return "", err
	}
	return store.Upload(ctx, data, http.DetectContentType(data))
}

type peerAction func(ctx context.Context, m *services.Messenger, peer identity.Identity) (*client.Receipt, error)

func inviteAction(ctx context.Context, m *services.Messenger, peer identity.Identity) (*client.Receipt, error) {
	return m.Invite(ctx, peer)
}

func acceptAction(ctx context.Context, m *services.Messenger, peer identity.Identity) (*client.Receipt, error) {
	return m.Accept(ctx, peer)
}

func rejectAction(ctx context.Context, m *services.Messenger, peer identity.Identity) (*client.Receipt, error) {
	return m.Reject(ctx, peer)
}

func peerCmd(app func() *App, use, short string, action peerAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <peer-identity>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, err := identity.Parse(args[0])
			if err != nil {
				return err
			}
			m, err := app().Messenger(cmd.Context())
			if err != nil {
				return err
			}
			rc, err := action(cmd.Context(), m, peer)
			if err != nil {
				return err
			}
			printReceipt(app(), "Done: "+use, rc)
			return nil
		},
	}
}

func showCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <identity>",
		Short: "Print a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identity.Parse(args[0])
			if err != nil {
				return err
			}
			c, err := app().Client()
			if err != nil {
				return err
			}
			p, err := c.Profile(cmd.Context(), id)
			if err != nil {
				return err
			}
			a := app()
			a.printf("Identity: %s\n", p.Owner)
			a.printf("Name:     %s\n", p.DisplayName)
			if p.AvatarURI != "" {
				a.printf("Avatar:   %s\n", p.AvatarURI)
			}
			a.printf("Version:  %d\n", p.Version)
			return nil
		},
	}
}

func contactsCmd(app func() *App) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "List your peers and their state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := app().Messenger(cmd.Context())
			if err != nil {
				return err
			}
			cs, err := m.Contacts(cmd.Context(), offline)
			if err != nil {
				return err
			}
			if len(cs) == 0 {
				app().printf("No contacts.\n")
				return nil
			}
			w := tabwriter.NewWriter(app().out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tIDENTITY\tSTATE\tDIRECTION")
			for _, c := range cs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.DisplayName, c.Identity, c.State, c.Direction)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "read the local cache instead of the ledger")
	return cmd
}

func avatarCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "avatar <identity>",
		Short: "Print a temporary download URL for a profile's avatar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := identity.Parse(args[0])
			if err != nil {
				return err
			}
			c, err := app().Client()
			if err != nil {
				return err
			}
			p, err := c.Profile(ctx, id)
			if err != nil {
				return err
			}
			if p.AvatarURI == "" {
				return errors.New("profile has no avatar")
			}
			store, err := avatar.NewStore(ctx, app().config.Avatar())
			if err != nil {
				return err
			}
			url, err := store.DownloadURL(ctx, p.AvatarURI)
			if err != nil {
				return err
			}
			app().printf("%s\n", url)
			return nil
		},
	}
}
