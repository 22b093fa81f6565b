package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli"

	"github.com/dandi/zarr-path-conflicts/pkg/archive"
	"github.com/dandi/zarr-path-conflicts/pkg/config"
	"github.com/dandi/zarr-path-conflicts/pkg/dandi"
	"github.com/dandi/zarr-path-conflicts/pkg/log_helper"
	"github.com/dandi/zarr-path-conflicts/pkg/scenario"
	"github.com/dandi/zarr-path-conflicts/pkg/storage"
)

var (
	version   = "unknown"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	log_helper.SetupLogger(os.Stderr)
	cliapp := cli.NewApp()
	cliapp.Name = "zarr-path-conflicts"
	cliapp.Usage = "Reproduce conflicting Zarr path uploads against a disposable local DANDI archive"
	cliapp.UsageText = "zarr-path-conflicts <command>"
	cliapp.Version = version

	cliapp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Value:  config.DefaultConfigPath,
			Usage:  "Config `FILE` name.",
			EnvVar: "ZARR_PATH_CONFLICTS_CONFIG",
		},
	}
	cliapp.CommandNotFound = func(c *cli.Context, command string) {
		fmt.Printf("Error. Unknown command: '%s'\n\n", command)
		cli.ShowAppHelpAndExit(c, 1)
	}

	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Println("Version:\t", c.App.Version)
		fmt.Println("Git Commit:\t", gitCommit)
		fmt.Println("Build Date:\t", buildDate)
	}

	cliapp.Commands = []cli.Command{
		{
			Name:      "run",
			Usage:     "Provision the archive, run the scenario, tear the archive down",
			UsageText: "zarr-path-conflicts run",
			Action: func(c *cli.Context) error {
				cfg := config.GetConfigFromCli(c)
				ctx, stop := signalContext()
				defer stop()
				p := archive.NewProvisioner(cfg)
				return p.WithArchive(ctx, func(ctx context.Context, a *archive.Archive) error {
					return runScenario(ctx, cfg, a.APIURL, a.APIToken)
				})
			},
			Flags: cliapp.Flags,
		},
		{
			Name:      "scenario",
			Usage:     "Run the scenario against an already running archive",
			UsageText: "zarr-path-conflicts scenario [--url=<api_url>] [--token=<api_token>]",
			Action: func(c *cli.Context) error {
				cfg := config.GetConfigFromCli(c)
				if c.String("url") != "" {
					cfg.Archive.APIURL = c.String("url")
				}
				if c.String("token") != "" {
					cfg.Archive.APIToken = c.String("token")
				}
				if cfg.Archive.APIToken == "" {
					return fmt.Errorf("no API token, pass --token or set DANDI_API_KEY")
				}
				ctx, stop := signalContext()
				defer stop()
				return runScenario(ctx, cfg, cfg.Archive.APIURL, cfg.Archive.APIToken)
			},
			Flags: append(cliapp.Flags,
				cli.StringFlag{
					Name:  "url",
					Usage: "Archive API URL, overrides the config",
				},
				cli.StringFlag{
					Name:  "token",
					Usage: "Archive API token, overrides the config",
				},
			),
		},
		{
			Name:      "provision",
			Usage:     "Bring up an archive instance and print its URL and token",
			UsageText: "zarr-path-conflicts provision",
			Action: func(c *cli.Context) error {
				cfg := config.GetConfigFromCli(c)
				ctx, stop := signalContext()
				defer stop()
				p := archive.NewProvisioner(cfg)
				a, err := p.Provision(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("project_name: %s\napi_url: %s\napi_token: %s\n", p.ProjectName(), a.APIURL, a.APIToken)
				return nil
			},
			Flags: cliapp.Flags,
		},
		{
			Name:      "teardown",
			Usage:     "Remove a provisioned archive instance and its volumes",
			UsageText: "zarr-path-conflicts teardown",
			Action: func(c *cli.Context) error {
				cfg := config.GetConfigFromCli(c)
				if cfg.Docker.ProjectName == "" {
					return fmt.Errorf("set docker.project_name to tear down a specific instance")
				}
				ctx, stop := signalContext()
				defer stop()
				return archive.NewProvisioner(cfg).Teardown(ctx)
			},
			Flags: cliapp.Flags,
		},
		{
			Name:  "default-config",
			Usage: "Print default config",
			Action: func(*cli.Context) error {
				config.PrintDefaultConfig()
				return nil
			},
			Flags: cliapp.Flags,
		},
	}
	if err := cliapp.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runScenario(ctx context.Context, cfg *config.Config, apiURL, apiToken string) error {
	client := dandi.NewClient(apiURL, apiToken, cfg.Archive.TimeoutDuration)
	var verifier scenario.StorageVerifier
	if cfg.Storage.Verify {
		s := storage.NewS3(&cfg.Storage)
		if err := s.Connect(ctx); err != nil {
			return err
		}
		defer func() {
			_ = s.Close(ctx)
		}()
		verifier = s
	}
	return scenario.Run(ctx, client, verifier)
}
