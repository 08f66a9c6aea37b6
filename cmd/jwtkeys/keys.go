package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgefirst-dev/jwt/keys"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List and rotate stored key pairs",
}

var keysListCmd = &cobra.Command{
	Use:   "list [signing|encryption]",
	Short: "List stored key pairs without generating any",
	Example: `  # List every stored key
  jwtkeys keys list --redis-addr=localhost:6379

  # List signing keys only
  jwtkeys keys list signing`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{keys.Signing.Name, keys.Encryption.Name},
	RunE:      keysListCmdRun,
}

var keysRotateCmd = &cobra.Command{
	Use:   "rotate <signing|encryption>",
	Short: "Expire the current key pairs of a purpose and generate a successor",
	Example: `  # Rotate the signing keys; tokens signed before stay verifiable
  jwtkeys keys rotate signing`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{keys.Signing.Name, keys.Encryption.Name},
	RunE:      keysRotateCmdRun,
}

func init() {
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysRotateCmd)
	rootCmd.AddCommand(keysCmd)
}

func keysListCmdRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), rootArgs.timeout)
	defer cancel()

	names := []string{keys.Signing.Name, keys.Encryption.Name}
	if len(args) == 1 {
		names = args
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PURPOSE\tKID\tALG\tCREATED\tSTATE")
	for _, name := range names {
		p, err := issuer.Purpose(name)
		if err != nil {
			return err
		}
		pairs, err := issuer.KeyManager().Load(ctx, p)
		if err != nil {
			return fmt.Errorf("failed to load %s keys: %w", name, err)
		}
		for _, pair := range pairs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				p.Name, pair.ID, pair.Algorithm, pair.Created.Format(time.RFC3339), keyState(pair))
		}
	}
	return w.Flush()
}

func keyState(pair keys.KeyPair) string {
	if pair.Valid() {
		return "current"
	}
	return "expired " + pair.Expired.Format(time.RFC3339)
}

func keysRotateCmdRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), rootArgs.timeout)
	defer cancel()

	pairs, err := issuer.Rotate(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to rotate %s keys: %w", args[0], err)
	}
	cmd.Printf("✔ rotated %s keys, current kid %s (%d stored)\n", args[0], pairs[0].ID, len(pairs))
	return nil
}
