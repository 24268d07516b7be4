package cmd

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/icodeuridevice/AICarServiceAgent/internal/auth"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Generate REF_HASH_KEY, REF_BLOCK_KEY and JWT_SECRET values (base64)",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range []string{"REF_HASH_KEY", "REF_BLOCK_KEY", "JWT_SECRET"} {
				b := make([]byte, 32)
				if _, err := rand.Read(b); err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "export %s=%s\n", name, base64.StdEncoding.EncodeToString(b))
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "hash-token <operator-token>",
		Short: "Print the OPERATOR_TOKEN_HASH for a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := auth.HashToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "export OPERATOR_TOKEN_HASH='%s'\n", h)
			return nil
		},
	})
	return cmd
}
