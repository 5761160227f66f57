// Command tenantrouter serves tenant-resolved HTTP traffic.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tenantrouter",
		Short: "Multi-tenant request resolution and connection routing",
		Long: `tenantrouter resolves the tenant of every request from its Host or
X-Tenant header, validates it against the shared registry and binds a pooled
connection to the tenant's own database.

Configuration is read from the environment (and a .env file when present).

Example usage:
  tenantrouter                         # same as "tenantrouter serve"
  tenantrouter token --tenant acme     # sign a development token`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.AddCommand(newServeCmd(), newTokenCmd())
	return root
}
