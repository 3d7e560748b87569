// Command caponectl is the capone client CLI: it issues
// Query/Request/Connect/Terminate commands against a remote daemon,
// using the local identity and config file to sign the handshake.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/capone-project/capone/capability"
	"github.com/capone-project/capone/client"
	"github.com/capone-project/capone/config"
	"github.com/capone-project/capone/identity"
)

var (
	flagConfig string
	flagServer string
	flagRemote string
)

var rootCmd = &cobra.Command{
	Use:   "caponectl",
	Short: "capone client",
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "/etc/capone/capone.conf", "path to the configuration file")
	flags.StringVar(&flagServer, "server", "", "server address, host:port")
	flags.StringVar(&flagRemote, "remote-key", "", "hex-encoded expected server public key")

	rootCmd.AddCommand(queryCmd, requestCmd, connectCmd, terminateCmd)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("caponectl: command failed")
		os.Exit(-1)
	}
}

func loadSelf() (*identity.SignKeyPair, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if !cfg.Core.HasSecret {
		return nil, fmt.Errorf("caponectl: config is missing core.secret_key")
	}
	return identity.NewSignKeyPairFromSecret(cfg.Core.SecretKey), nil
}

func remoteKey() (identity.SignPublic, error) {
	return identity.ParseSignPublic(flagRemote)
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "query a service's description",
	RunE: func(cmd *cobra.Command, args []string) error {
		self, err := loadSelf()
		if err != nil {
			return err
		}
		remote, err := remoteKey()
		if err != nil {
			return err
		}
		ch, err := client.Dial(context.Background(), flagServer, self, remote)
		if err != nil {
			return err
		}
		defer ch.Close()

		desc, err := client.Query(ch)
		if err != nil {
			return err
		}
		fmt.Printf("name=%s category=%s type=%s version=%s location=%s port=%s\n",
			desc.Name, desc.Category, desc.Type, desc.Version, desc.Location, desc.Port)
		return nil
	},
}

var requestParams string

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "request a session, printing the identifier and capability string",
	RunE: func(cmd *cobra.Command, args []string) error {
		self, err := loadSelf()
		if err != nil {
			return err
		}
		remote, err := remoteKey()
		if err != nil {
			return err
		}
		ch, err := client.Dial(context.Background(), flagServer, self, remote)
		if err != nil {
			return err
		}
		defer ch.Close()

		id, cap, err := client.RequestSession(ch, []byte(requestParams))
		if err != nil {
			return err
		}
		fmt.Printf("identifier=%d capability=%s\n", id, cap.String())
		return nil
	},
}

var (
	connectID  uint32
	connectCap string
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "connect to a previously requested session",
	RunE: func(cmd *cobra.Command, args []string) error {
		self, err := loadSelf()
		if err != nil {
			return err
		}
		remote, err := remoteKey()
		if err != nil {
			return err
		}
		cap, err := capability.Parse(connectCap)
		if err != nil {
			return err
		}
		ch, err := client.Dial(context.Background(), flagServer, self, remote)
		if err != nil {
			return err
		}
		defer ch.Close()

		if err := client.StartSession(ch, connectID, cap); err != nil {
			return err
		}
		log.Info().Uint32("session", connectID).Msg("caponectl: session connected")
		return nil
	},
}

var (
	terminateID  uint32
	terminateCap string
)

var terminateCmd = &cobra.Command{
	Use:   "terminate",
	Short: "terminate a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		self, err := loadSelf()
		if err != nil {
			return err
		}
		remote, err := remoteKey()
		if err != nil {
			return err
		}
		cap, err := capability.Parse(terminateCap)
		if err != nil {
			return err
		}
		ch, err := client.Dial(context.Background(), flagServer, self, remote)
		if err != nil {
			return err
		}
		defer ch.Close()

		return client.Terminate(ch, terminateID, cap)
	},
}

func init() {
	requestCmd.Flags().StringVar(&requestParams, "params", "", "plugin-specific request parameters")

	connectCmd.Flags().Uint32Var(&connectID, "id", 0, "session identifier")
	connectCmd.Flags().StringVar(&connectCap, "cap", "", "capability string")

	terminateCmd.Flags().Uint32Var(&terminateID, "id", 0, "session identifier")
	terminateCmd.Flags().StringVar(&terminateCap, "cap", "", "capability string")
}
