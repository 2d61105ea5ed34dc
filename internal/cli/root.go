// Package cli implements the biobank CLI commands.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rcliao/biobank/internal/config"
	"github.com/rcliao/biobank/internal/ledger"
	"github.com/rcliao/biobank/internal/lifecycle"
	"github.com/rcliao/biobank/internal/model"
	"github.com/rcliao/biobank/internal/signer"
	"github.com/rcliao/biobank/internal/store"
)

var (
	configPath string
	dbPath     string
	keyPath    string
	driverFlag string
	formatFlag string
	logLevel   string
	assumeYes  bool

	cfg    *config.Config
	log    *logrus.Logger
	prompt *signer.Prompter
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "biobank",
	Short: "Obfuscated biomedical records on a key-value ledger",
	Long: "Submit numeric biomedical values as obfuscated tokens, review them " +
		"(pending -> verified | rejected) and decrypt your own values after signing a challenge.",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $BIOBANK_CONFIG or ~/.biobank/config.toml)")
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "SQLite ledger path (overrides config)")
	RootCmd.PersistentFlags().StringVar(&keyPath, "key", "", "Identity key file (overrides config)")
	RootCmd.PersistentFlags().StringVar(&driverFlag, "ledger", "", "Ledger driver: sqlite or redis (overrides config)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")
	RootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Sign and send without asking for confirmation")
}

func getConfigPath() (string, bool) {
	if configPath != "" {
		return configPath, false
	}
	if env := os.Getenv("BIOBANK_CONFIG"); env != "" {
		return env, false
	}
	return filepath.Join(config.Dir(), "config.toml"), true
}

func loadConfig(cmd *cobra.Command, args []string) error {
	path, optional := getConfigPath()
	c, err := config.Load(path, optional)
	if err != nil {
		return err
	}
	if dbPath != "" {
		c.Ledger.Path = dbPath
	}
	if keyPath != "" {
		c.Identity.KeyFile = keyPath
	}
	if driverFlag != "" {
		c.Ledger.Driver = driverFlag
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c
	log = c.Logger()
	prompt = signer.NewPrompter(os.Stdin, os.Stderr)
	return nil
}

// backend is a ledger that can hand out write handles.
type backend interface {
	ledger.Reader
	Signer(from string) ledger.Writer
	Close() error
}

func openLedger() (backend, error) {
	switch cfg.Ledger.Driver {
	case "redis":
		return ledger.NewRedis(cfg.Ledger.RedisURL, cfg.Ledger.RedisPrefix)
	default:
		return ledger.NewSQLite(cfg.Ledger.Path)
	}
}

// loadIdentity reads the identity key. A missing key file means the caller
// is not authenticated.
func loadIdentity() (*signer.Key, error) {
	k, err := signer.LoadFile(cfg.Identity.KeyFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: no identity key at %s (run `biobank keygen`)", model.ErrNotAuthenticated, cfg.Identity.KeyFile)
	}
	return k, err
}

// session bundles the handles a command needs.
type session struct {
	ledger   backend
	key      *signer.Key
	identity string
	store    *store.RecordStore
	ctl      *lifecycle.Controller
}

// openSession opens the ledger and, when withIdentity is set, loads the
// identity key and a write handle bound to it. Writes ask for confirmation
// unless --yes is set.
func openSession(withIdentity bool) (*session, error) {
	l, err := openLedger()
	if err != nil {
		return nil, err
	}
	s := &session{ledger: l}

	var w ledger.Writer
	if withIdentity {
		k, err := loadIdentity()
		if err != nil {
			l.Close()
			return nil, err
		}
		s.key = k
		s.identity = k.Address()
		w = l.Signer(s.identity)
		if !assumeYes {
			w = &signer.ConfirmingWriter{W: w, From: s.identity, Prompt: prompt}
		}
	}

	entry := logrus.NewEntry(log).WithField("ledger", cfg.Ledger.Driver)
	s.store = store.New(l, w, entry)
	s.store.SetConcurrency(cfg.Ledger.Concurrency)
	s.ctl = lifecycle.NewController(s.store, nil, lifecycle.Policy{Reviewers: cfg.Review.Reviewers}, entry)
	return s, nil
}

func (s *session) Close() error {
	return s.ledger.Close()
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

// fail reports err with the message a user should see for op and exits.
func fail(op string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s\n", userMessage(op, err))
	os.Exit(1)
}
