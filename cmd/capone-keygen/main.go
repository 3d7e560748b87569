// Command capone-keygen generates an Ed25519 identity keypair and
// prints it as the hex-encoded [core] lines a capone configuration
// file expects.
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/capone-project/capone/identity"
)

var flagName string

var rootCmd = &cobra.Command{
	Use:   "capone-keygen",
	Short: "generate a capone identity keypair",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagName, "name", "", "human label to embed as a comment")
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("capone-keygen: fatal error")
		os.Exit(-1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	pair, err := identity.GenerateSignKeyPair(nil)
	if err != nil {
		return err
	}

	if flagName != "" {
		fmt.Printf("# %s\n", flagName)
	}
	fmt.Printf("[core]\n")
	fmt.Printf("public_key=%s\n", hex.EncodeToString(pair.Public[:]))
	fmt.Printf("secret_key=%s\n", hex.EncodeToString(pair.Secret[:]))
	return nil
}
