package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
)

// PluginEngine runs every invocation in a fresh engine host process, so a
// crashed or stuck engine never affects other regions.
type PluginEngine struct {
	Executable string
	Args       []string
	LogLevel   string
}

var _ Engine = (*PluginEngine)(nil)

func NewPluginEngine(executable string, args ...string) *PluginEngine {
	return &PluginEngine{Executable: executable, Args: args, LogLevel: "info"}
}

func (e *PluginEngine) Invoke(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          PluginMap(nil),
		Cmd:              exec.Command(e.Executable, e.Args...),
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
		// Lets plugin.CleanupClients kill hosts a timed out run left behind.
		Managed: true,
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:  "engine",
			Level: hclog.LevelFromString(e.LogLevel),
		}),
	})
	defer client.Kill()

	rpcClient, err := client.Client()
	if err != nil {
		return Result{}, engineError(req.Region, fmt.Errorf("error establishing RPC connection: %w", err))
	}

	raw, err := rpcClient.Dispense(PluginName)
	if err != nil {
		return Result{}, engineError(req.Region, fmt.Errorf("error dispensing '%s': %w", PluginName, err))
	}

	impl, ok := raw.(Engine)
	if !ok {
		return Result{}, engineError(req.Region, fmt.Errorf("dispensed interface '%s' is not of expected type Engine (actual type: %T)", PluginName, raw))
	}

	res, err := impl.Invoke(ctx, req)
	if err != nil {
		slog.Error("engine invocation failed", "region", req.Region, "error", err)
		return Result{}, engineError(req.Region, err)
	}

	res.Duration = time.Since(start)
	slog.Info("engine invocation completed", "region", req.Region, "target_folder", res.TargetFolder, "duration", res.Duration)

	return res, nil
}
