// gcond runs one conductor instance from a TOML configuration.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/hc-network/gcond/conductor"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "path to the conductor TOML configuration",
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "data directory for chain, DHT shard and keystore",
	}
	dnaFlag = &cli.StringFlag{
		Name:  "dna",
		Usage: "path to the DNA manifest JSON",
	}
	nickFlag = &cli.StringFlag{
		Name:  "nick",
		Usage: "agent nickname committed at genesis",
	}
	passphraseFlag = &cli.StringFlag{
		Name:    "passphrase",
		Usage:   "keystore passphrase",
		EnvVars: []string{"GCOND_PASSPHRASE"},
	}
	verbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "log level (debug, info, warn, error)",
		Value: "info",
	}
)

func main() {
	app := &cli.App{
		Name:  "gcond",
		Usage: "distributed application conductor",
		Flags: []cli.Flag{
			configFlag, dataDirFlag, dnaFlag, nickFlag, passphraseFlag, verbosityFlag,
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	level, err := logrus.ParseLevel(ctx.String(verbosityFlag.Name))
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	cfg := conductor.DefaultConfig()
	if path := ctx.String(configFlag.Name); path != "" {
		if cfg, err = conductor.LoadConfig(path); err != nil {
			return err
		}
	}
	if dir := ctx.String(dataDirFlag.Name); dir != "" {
		cfg.DataDir = dir
	}
	if dna := ctx.String(dnaFlag.Name); dna != "" {
		cfg.DnaPath = dna
	}
	if nick := ctx.String(nickFlag.Name); nick != "" {
		cfg.Nick = nick
	}
	if pass := ctx.String(passphraseFlag.Name); pass != "" {
		cfg.Passphrase = pass
	}
	if cfg.DnaPath == "" {
		return fmt.Errorf("gcond: no DNA manifest configured (use --dna or the config file)")
	}

	c, err := conductor.New(cfg, nil)
	if err != nil {
		return err
	}
	if err := c.Start(context.Background()); err != nil {
		return err
	}
	defer c.Stop()
	logrus.WithField("agent", c.Agent()).Info("conductor running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logrus.Info("shutting down")
	return nil
}
