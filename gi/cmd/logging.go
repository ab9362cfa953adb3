package cmd

import (
	"github.com/urfave/cli"

	"github.com/gekko3d/gicache/gi/log"
)

var logger = log.NewDefaultLogger("gicache", false)

func setupLogging(ctx *cli.Context) {
	logger.SetQuiet()

	if ctx.GlobalBool("v") {
		logger.SetDebug(false)
	}

	if ctx.GlobalBool("vv") {
		logger.SetDebug(true)
	}
}
