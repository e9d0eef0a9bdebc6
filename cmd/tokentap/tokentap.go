// Package tokentap provides the root tokentap command.
package tokentap

import (
	"github.com/spf13/cobra"

	"github.com/tokentap/tokentap/cmd/tokentap/serve"
)

const rootLongDesc = `tokentap is a transparent metering proxy for LLM inference servers.

It forwards requests to a dynamically selected backend port, streams the
response back byte-for-byte, and derives structured usage records (model,
prompt, token counts, latency) from the same stream without adding
latency to the client path.`

// NewRootCmd creates the root tokentap command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokentap",
		Short: "Transparent LLM usage-metering proxy",
		Long:  rootLongDesc,
	}

	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config", "", "Path to tokentap.toml")

	cmd.AddCommand(serve.NewServeCmd())

	return cmd
}
