package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mirokugang/mukon/internal/client/client"
	"github.com/mirokugang/mukon/internal/client/config"
	"github.com/mirokugang/mukon/internal/client/repositories/contacts"
	"github.com/mirokugang/mukon/internal/client/repositories/state"
	"github.com/mirokugang/mukon/internal/client/services"
	"github.com/mirokugang/mukon/internal/common"
	"github.com/mirokugang/mukon/internal/cryptox"
	"github.com/mirokugang/mukon/internal/filex"
	"github.com/mirokugang/mukon/internal/identity"
	"github.com/mirokugang/mukon/internal/logging"
)

const passphraseEnv = "MUKON_PASSPHRASE"

var ErrNoKey = errors.New("no identity key, run `mukon keygen` first")

// ClientFactory opens a ledger client for cfg.
type ClientFactory func(cfg *config.Config) (client.Client, error)

func dialLedger(cfg *config.Config) (client.Client, error) {
	return client.NewLedgerClient(cfg.LedgerAddr, cfg.SchemaVersion, cfg.Retry())
}

// App holds what a single command invocation needs. Resources are opened
// on first use and released by Close.
type App struct {
	config    *config.Config
	in        *bufio.Reader
	out       io.Writer
	logger    logging.Logger
	newClient ClientFactory

	keys    *identity.KeyPair
	state   *state.BoltStore
	closers []func() error
}

func NewApp(cfg *config.Config, in io.Reader, out io.Writer, newClient ClientFactory) *App {
	if newClient == nil {
		newClient = dialLedger
	}
	return &App{
		config:    cfg,
		in:        bufio.NewReader(in),
		out:       out,
		logger:    logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel),
		newClient: newClient,
	}
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) passphrase(confirm bool) ([]byte, error) {
	if p, ok := os.LookupEnv(passphraseEnv); ok {
		return []byte(p), nil
	}
	p, err := GetPassword(a.out, a.in, "Passphrase: ")
	if err != nil {
		return nil, err
	}
	if !confirm {
		return p, nil
	}
	again, err := GetPassword(a.out, a.in, "Repeat passphrase: ")
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(again)
	if string(p) != string(again) {
		return nil, errors.New("passphrases do not match")
	}
	return p, nil
}

// Keygen creates and seals a new identity. An existing key is only
// replaced when force is set.
func (a *App) Keygen(force bool) (identity.Identity, error) {
	path := a.config.KeystorePath()
	if filex.Exists(path) && !force {
		return identity.Identity{}, fmt.Errorf("key already exists at %s (use --force to replace it)", path)
	}
	if _, err := filex.EnsureDir(a.config.HomeDir); err != nil {
		return identity.Identity{}, err
	}

	kp, err := identity.Generate()
	if err != nil {
		return identity.Identity{}, err
	}
	pass, err := a.passphrase(true)
	if err != nil {
		return identity.Identity{}, err
	}
	defer common.WipeByteArray(pass)

	sealed, err := cryptox.Seal(kp.Seed(), pass)
	if err != nil {
		return identity.Identity{}, err
	}
	if err := filex.WriteFileAtomic(path, sealed, 0o600); err != nil {
		return identity.Identity{}, fmt.Errorf("write key: %w", err)
	}
	a.keys = kp
	return kp.Identity(), nil
}

// Keys unseals the identity key.
func (a *App) Keys() (*identity.KeyPair, error) {
	if a.keys != nil {
		return a.keys, nil
	}
	data, err := os.ReadFile(a.config.KeystorePath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoKey
	}
	if err != nil {
		return nil, err
	}

	pass, err := a.passphrase(false)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(pass)

	seed, err := cryptox.Open(data, pass)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(seed)

	kp, err := identity.FromSeed(seed)
	if err != nil {
		return nil, err
	}
	a.keys = kp
	return kp, nil
}

// Client opens a ledger client without needing the key.
func (a *App) Client() (client.Client, error) {
	c, err := a.newClient(a.config)
	if err != nil {
		return nil, fmt.Errorf("ledger client: %w", err)
	}
	a.closers = append(a.closers, c.Close)
	return c, nil
}

// State opens the bbolt state file. It stays locked until Close.
func (a *App) State() (*state.BoltStore, error) {
	if a.state != nil {
		return a.state, nil
	}
	if _, err := filex.EnsureDir(a.config.HomeDir); err != nil {
		return nil, err
	}
	st, err := state.Open(a.config.StatePath())
	if err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}
	a.closers = append(a.closers, st.Close)
	a.state = st
	return st, nil
}

// Messenger wires the ledger client, the contacts cache and nonce state
// around the unsealed key.
func (a *App) Messenger(ctx context.Context) (*services.Messenger, error) {
	kp, err := a.Keys()
	if err != nil {
		return nil, err
	}
	if _, err := filex.EnsureDir(a.config.HomeDir); err != nil {
		return nil, err
	}

	c, err := a.Client()
	if err != nil {
		return nil, err
	}

	db, err := client.InitDatabase(ctx, a.config.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("contacts cache: %w", err)
	}
	a.closers = append(a.closers, db.Close)

	st, err := a.State()
	if err != nil {
		return nil, err
	}

	return services.NewMessenger(c, kp, st, contacts.NewSQLiteRepository(db), a.config.SchemaVersion, a.logger), nil
}
