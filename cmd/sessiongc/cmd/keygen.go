package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/sessionstore/pkg/cookie"
)

var keygenSize int

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a cookie secret",
	Long: `Generate a random secret for COOKIE_SECRET, encoded as base64url.

Example:
  sessiongc keygen --size 32`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		secret, err := cookie.GenerateSecret(keygenSize)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), secret)
		return err
	},
}

func init() {
	keygenCmd.Flags().IntVar(&keygenSize, "size", 32, fmt.Sprintf("secret size in bytes, one of %v", cookie.SecretSizes))
	rootCmd.AddCommand(keygenCmd)
}
