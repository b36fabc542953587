package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultAPIBase = "http://127.0.0.1:8090"

var errUnhealthy = errors.New("endpoint unhealthy")

func main() {
	if err := newRootCmd(viper.New()).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	v.SetEnvPrefix("RESOLVER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("api_base", defaultAPIBase)
	v.SetDefault("api_key", "")

	root := &cobra.Command{
		Use:   "resolverctl",
		Short: "Inspect and steer a running endpoint resolver",
		Long: `resolverctl talks to the resolver debug API.

  resolverctl show                 current endpoint and last probe results
  resolverctl resolve [--force]    run a resolution
  resolverctl set <url>            pin an endpoint without probing
  resolverctl reset                forget the endpoint and cache
  resolverctl health               re-probe the active endpoint
  resolverctl candidates           list what would be probed`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("api", "", "debug API base URL (env RESOLVER_API_BASE)")
	root.PersistentFlags().String("key", "", "API key (env RESOLVER_API_KEY)")
	_ = v.BindPFlag("api_base", root.PersistentFlags().Lookup("api"))
	_ = v.BindPFlag("api_key", root.PersistentFlags().Lookup("key"))

	client := func() *apiClient { return newAPIClient(v.GetString("api_base"), v.GetString("api_key")) }

	root.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the resolver state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := client().Show(cmd.Context())
			return printJSON(cmd.OutOrStdout(), raw, err)
		},
	})

	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the endpoint, probing if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			force, _ := cmd.Flags().GetBool("force")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			raw, err := client().Resolve(cmd.Context(), force, timeout)
			return printJSON(cmd.OutOrStdout(), raw, err)
		},
	}
	resolveCmd.Flags().Bool("force", false, "ignore cache and cooldown")
	resolveCmd.Flags().Duration("timeout", 0, "per-probe timeout")
	root.AddCommand(resolveCmd)

	root.AddCommand(&cobra.Command{
		Use:   "set <url>",
		Short: "Pin the endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := client().Set(cmd.Context(), args[0])
			return printJSON(cmd.OutOrStdout(), raw, err)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Forget the endpoint and clear the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := client().Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "reset")
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Health-check the active endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, ok, err := client().Health(cmd.Context())
			if err := printJSON(cmd.OutOrStdout(), raw, err); err != nil {
				return err
			}
			if !ok {
				return errUnhealthy
			}
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "candidates",
		Short: "List the candidates a resolution would probe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := client().Candidates(cmd.Context())
			return printJSON(cmd.OutOrStdout(), raw, err)
		},
	})

	return root
}

func printJSON(w io.Writer, raw []byte, err error) error {
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if json.Indent(&buf, bytes.TrimSpace(raw), "", "  ") != nil {
		_, werr := w.Write(raw)
		return werr
	}
	buf.WriteByte('\n')
	_, werr := w.Write(buf.Bytes())
	return werr
}
