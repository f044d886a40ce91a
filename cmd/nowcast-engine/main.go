package main

import (
	"log"
	"log/slog"
	"nowcast-pipeline/cmd"
	"nowcast-pipeline/internal/config"
	"nowcast-pipeline/internal/core/engine"

	"github.com/hashicorp/go-plugin"
)

// Engine host process, started by the pipeline once per region run. It is not
// meant to be run by hand.
func main() {
	cfg, err := config.LoadEngineHost()
	if err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("error parsing config: %v", err)
	}
	// Stderr is forwarded to the pipeline's plugin logger.
	cmd.InitLogging(level)

	slog.Info("serving estimation engine", "rscript", cfg.Rscript, "script", cfg.Script)

	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: engine.Handshake,
		Plugins:         engine.PluginMap(&engine.RscriptEngine{Executable: cfg.Rscript, Script: cfg.Script}),
	})
}
