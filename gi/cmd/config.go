package cmd

import (
	"os"

	"github.com/urfave/cli"

	gicache "github.com/gekko3d/gicache"
)

// loadConfig reads the global --config file, or returns the defaults.
func loadConfig(ctx *cli.Context) (gicache.Config, error) {
	path := ctx.GlobalString("config")
	if path == "" {
		return gicache.DefaultConfig(), nil
	}
	cfg, err := gicache.LoadConfig(path)
	if err != nil {
		return cfg, err
	}
	logger.Infof("loaded config from %s", path)
	return cfg, nil
}

// PrintConfig writes the effective configuration as YAML.
func PrintConfig(ctx *cli.Context) error {
	setupLogging(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	return gicache.WriteConfig(os.Stdout, cfg)
}
