package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xizzxy/atlas/internal/limiter"
	"github.com/xizzxy/atlas/internal/store"
	"github.com/xizzxy/atlas/internal/usage"
)

var Version = "dev"

type urls struct {
	gateway string
	control string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	u := &urls{}

	rootCmd := &cobra.Command{
		Use:           "atlasctl",
		Short:         "Atlas - per-client rate limiting",
		Long:          "Inspect gateway usage and manage client policies on the control plane",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&u.gateway, "gateway", "g", "http://localhost:8080", "Atlas gateway URL")
	rootCmd.PersistentFlags().StringVarP(&u.control, "control", "c", "http://localhost:8081", "Atlas control plane URL")

	rootCmd.AddCommand(
		statsCmd(u),
		clientsCmd(u),
		clientCmd(u),
		policiesCmd(u),
		versionCmd(),
	)
	return rootCmd
}

func statsCmd(u *urls) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show gateway-wide usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats usage.GlobalStats
			if err := call(http.MethodGet, u.gateway, "/stats", nil, &stats); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total Requests:    %d\n", stats.TotalRequests)
			fmt.Fprintf(out, "Total Violations:  %d\n", stats.TotalViolations)
			fmt.Fprintf(out, "Clients Tracked:   %d\n", stats.ClientsTracked)
			return nil
		},
	}
}

func clientsCmd(u *urls) *cobra.Command {
	return &cobra.Command{
		Use:     "clients",
		Aliases: []string{"ls"},
		Short:   "List usage for every client the gateway has seen",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Clients []usage.ClientUsage `json:"clients"`
			}
			if err := call(http.MethodGet, u.gateway, "/stats/clients", nil, &resp); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CLIENT\tREQUESTS\tVIOLATIONS")
			for _, c := range resp.Clients {
				fmt.Fprintf(w, "%s\t%d\t%d\n", c.Client, c.Requests, c.Violations)
			}
			return w.Flush()
		},
	}
}

func clientCmd(u *urls) *cobra.Command {
	return &cobra.Command{
		Use:   "client [id]",
		Short: "Show usage for one client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats usage.ClientUsage
			if err := call(http.MethodGet, u.gateway, "/stats/clients/"+escape(args[0]), nil, &stats); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Client:      %s\n", stats.Client)
			fmt.Fprintf(out, "Requests:    %d\n", stats.Requests)
			fmt.Fprintf(out, "Violations:  %d\n", stats.Violations)
			return nil
		},
	}
}

func policiesCmd(u *urls) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "policies",
		Aliases: []string{"policy"},
		Short:   "Manage client policies on the control plane",
	}
	cmd.AddCommand(
		policiesListCmd(u),
		policiesGetCmd(u),
		policiesSetCmd(u),
		policiesDeleteCmd(u),
	)
	return cmd
}

func policiesListCmd(u *urls) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Policies []store.Policy `json:"policies"`
			}
			if err := call(http.MethodGet, u.control, "/api/v1/policies", nil, &resp); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CLIENT\tALGORITHM\tPARAMETERS\tUPDATED")
			for _, p := range resp.Policies {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Client, p.Algorithm, describe(p.Config), p.Updated.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func policiesGetCmd(u *urls) *cobra.Command {
	return &cobra.Command{
		Use:   "get [client]",
		Short: "Show one stored policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p store.Policy
			if err := call(http.MethodGet, u.control, "/api/v1/policies/"+escape(args[0]), nil, &p); err != nil {
				return err
			}
			printPolicy(cmd.OutOrStdout(), p)
			return nil
		},
	}
}

func policiesSetCmd(u *urls) *cobra.Command {
	var cfg limiter.Config
	var algorithm string

	cmd := &cobra.Command{
		Use:   "set [client]",
		Short: "Create or replace a client's policy",
		Long: `Create or replace a client's policy. Gateways pick up the change on
their next start.

  atlasctl policies set premium --algorithm token --capacity 50 --rate 10
  atlasctl policies set batch --algorithm sliding --limit 1000 --window 3600`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Algorithm = limiter.Algorithm(algorithm)
			if err := cfg.Validate(); err != nil {
				return err
			}

			var p store.Policy
			if err := call(http.MethodPut, u.control, "/api/v1/policies/"+escape(args[0]), cfg, &p); err != nil {
				return err
			}
			printPolicy(cmd.OutOrStdout(), p)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&algorithm, "algorithm", "a", string(limiter.AlgoFixedWindow), "fixed, sliding or token")
	flags.Int64VarP(&cfg.Limit, "limit", "l", 0, "requests per window (fixed, sliding)")
	flags.Int64VarP(&cfg.WindowSeconds, "window", "w", 0, "window length in seconds (fixed, sliding)")
	flags.Float64Var(&cfg.Capacity, "capacity", 0, "bucket capacity (token)")
	flags.Float64Var(&cfg.RefillRatePerSecond, "rate", 0, "tokens refilled per second (token)")
	return cmd
}

func policiesDeleteCmd(u *urls) *cobra.Command {
	return &cobra.Command{
		Use:     "delete [client]",
		Aliases: []string{"rm"},
		Short:   "Delete a client's policy",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := call(http.MethodDelete, u.control, "/api/v1/policies/"+escape(args[0]), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted policy for %s\n", args[0])
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "atlasctl version %s\n", Version)
		},
	}
}

func describe(cfg limiter.Config) string {
	if cfg.Algorithm == limiter.AlgoTokenBucket {
		return fmt.Sprintf("capacity=%g rate=%g/s", cfg.Capacity, cfg.RefillRatePerSecond)
	}
	return fmt.Sprintf("limit=%d window=%ds", cfg.Limit, cfg.WindowSeconds)
}

func printPolicy(out io.Writer, p store.Policy) {
	fmt.Fprintf(out, "Client:      %s\n", p.Client)
	fmt.Fprintf(out, "Algorithm:   %s\n", p.Algorithm)
	fmt.Fprintf(out, "Parameters:  %s\n", describe(p.Config))
	fmt.Fprintf(out, "Created:     %s\n", p.Created.Format(time.RFC3339))
	fmt.Fprintf(out, "Updated:     %s\n", p.Updated.Format(time.RFC3339))
}
