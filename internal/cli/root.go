package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tradeverifyd/cose-engine/internal/config"
)

// Global flags
var (
	cfgFile string
	verbose bool
	cfg     *config.Config
	log     = logrus.New()
)

// NewRootCommand creates the root cobra command for the COSE test harness.
func NewRootCommand(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cose-engine",
		Short: "COSE message engine test harness",
		Long: `cose-engine drives a COSE (RFC 9052/9053) message construction, parsing,
and cryptographic-processing engine from JSON control files.

It supports all six COSE message variants:
  - Encrypt0 / Encrypt   (AEAD content encryption, direct or recipient-tree)
  - MAC0 / MAC           (message authentication)
  - Sign1 / Sign         (single- or multi-signer signatures)

Each control file describes one operation (encrypt, decrypt, mac_create,
mac_validate, sign, verify) and the engine prints the resulting encoded
message or recovered payload.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./cose.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewDiagnoseCommand())

	return rootCmd
}

// initConfig loads configuration from file, falling back to the harness's
// built-in defaults when no cose.yaml is present.
func initConfig() {
	if cfgFile == "" {
		if _, err := os.Stat("cose.yaml"); err == nil {
			cfgFile = "cose.yaml"
		} else if _, err := os.Stat("cose.yml"); err == nil {
			cfgFile = "cose.yml"
		}
	}

	if cfgFile != "" {
		loaded, err := config.LoadConfig(cfgFile)
		if err != nil {
			log.WithError(err).Warn("failed to load config, using defaults")
			cfg = config.Default()
		} else {
			cfg = loaded
		}
	} else {
		cfg = config.Default()
	}

	if verbose || cfg.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	return cfg
}
