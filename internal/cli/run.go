package cli

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tradeverifyd/cose-engine/internal/harness"
)

type runOptions struct {
	controlFile string
	outputFile  string
	encoding    string
}

// NewRunCommand creates the `run` command: the JSON control-file driven
// harness that exercises pkg/cose for all six COSE message variants.
func NewRunCommand() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <control-file.json>",
		Short: "Run a COSE operation described by a JSON control file",
		Long: `Reads a JSON control file describing one of the six COSE message variants
(encrypt0, enveloped, mac0, mac, sign0, signed) and the operation to perform
on it, drives pkg/cose to carry it out, and prints the result.

Encode-direction operations (encrypt, mac_create, sign) print the encoded
COSE message. Decode-direction operations (decrypt, mac_validate, verify)
print the recovered payload.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.controlFile = args[0]
			return runHarness(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.outputFile, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVar(&opts.encoding, "encoding", "", "output encoding: base64 or hex (default: from config)")

	return cmd
}

func runHarness(opts *runOptions) error {
	runID := uuid.New().String()
	entry := log.WithField("run_id", runID)

	cf, err := harness.LoadControlFile(opts.controlFile)
	if err != nil {
		return fmt.Errorf("load control file: %w", err)
	}
	entry.WithFields(logrusFields(cf)).Debug("loaded control file")

	result, err := harness.Run(cf)
	if err != nil {
		entry.WithError(err).Error("harness run failed")
		return err
	}

	encoding := opts.encoding
	if encoding == "" {
		encoding = "base64"
		if cfg != nil && cfg.OutputEncoding != "" {
			encoding = cfg.OutputEncoding
		}
	}

	payload := result.OutputBytes
	if payload == nil {
		payload = result.Payload
	}

	encoded, err := encodeOutput(payload, encoding)
	if err != nil {
		return err
	}

	if opts.outputFile != "" {
		if err := os.WriteFile(opts.outputFile, []byte(encoded+"\n"), 0644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		entry.WithField("output_file", opts.outputFile).Info("wrote result")
		return nil
	}

	fmt.Println(encoded)
	return nil
}

func encodeOutput(b []byte, encoding string) (string, error) {
	switch encoding {
	case "base64":
		return base64.StdEncoding.EncodeToString(b), nil
	case "hex":
		return hex.EncodeToString(b), nil
	default:
		return "", fmt.Errorf("unsupported output encoding %q", encoding)
	}
}

func logrusFields(cf *harness.ControlFile) map[string]interface{} {
	return map[string]interface{}{
		"variant":   cf.Variant,
		"operation": cf.Operation,
	}
}
