// Command caponed runs a capone service daemon: it loads a
// configuration file, publishes the configured services, and serves
// Query/Request/Connect/Terminate over one TCP listener per service
// plus the LAN discovery responder.
package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/capone-project/capone/acl"
	"github.com/capone-project/capone/channel"
	"github.com/capone-project/capone/config"
	"github.com/capone-project/capone/identity"
	"github.com/capone-project/capone/plugin/capbroker"
	"github.com/capone-project/capone/plugin/screenshare"
	"github.com/capone-project/capone/plugin/shellexec"
	"github.com/capone-project/capone/server"
	"github.com/capone-project/capone/service"
)

var (
	flagConfig string
	flagDebug  bool
)

var rootCmd = &cobra.Command{
	Use:   "caponed",
	Short: "capone service daemon",
	RunE:  run,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "/etc/capone/capone.conf", "path to the configuration file")
	flags.BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("caponed: fatal error")
		os.Exit(-1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if flagDebug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if !cfg.Core.HasSecret {
		log.Fatal().Msg("caponed: core.secret_key is required to run a daemon")
	}

	self := identity.NewSignKeyPairFromSecret(cfg.Core.SecretKey)
	srv := server.New(self, cfg.Core.Name)
	srv.QueryACL = acl.Any()
	srv.RequestACL = acl.Any()

	for _, svcCfg := range cfg.Services {
		svc := &service.Service{
			Name:     svcCfg.Name,
			Category: "capone",
			Type:     svcCfg.Type,
			Location: svcCfg.Location,
			Port:     svcCfg.Port,
			ACL:      acl.Any(),
		}
		switch svcCfg.Type {
		case "shell-exec":
			p := &shellexec.Plugin{Whitelist: []string{"*"}}
			svc.Plugin = p
			svc.Connect = func(ctx context.Context, ch *channel.Channel, remote identity.SignPublic, params []byte) error {
				return shellexec.Run(ctx, ch, params)
			}
		case "screen-share":
			p := &screenshare.Plugin{Addr: "127.0.0.1:" + cfg.Xpra.Port}
			svc.Plugin = p
			svc.Connect = func(ctx context.Context, ch *channel.Channel, remote identity.SignPublic, params []byte) error {
				return screenshare.Run(ctx, ch, p.Addr)
			}
		case "capabilities-broker":
			p := capbroker.NewPlugin()
			svc.Plugin = p
			svc.Connect = func(ctx context.Context, ch *channel.Channel, remote identity.SignPublic, params []byte) error {
				return capbrokerConnect(ctx, ch, p, remote, params)
			}
		default:
			log.Warn().Str("service", svcCfg.Name).Str("type", svcCfg.Type).Msg("caponed: unknown service type, publishing without a plugin")
		}
		srv.Services = append(srv.Services, svc)
		log.Info().Str("service", svc.Name).Str("type", svc.Type).Str("port", svc.Port).Msg("caponed: service registered")
	}

	sup := server.NewSupervisor(srv, cfg.Core.Name)
	if cfg.Admin.Port != "" {
		sup.AdminAddr = ":" + cfg.Admin.Port
	}
	return sup.Run(context.Background())
}
