package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/rpc"
	"nowcast-pipeline/internal/core/table"
	"nowcast-pipeline/internal/core/types"

	"github.com/hashicorp/go-plugin"
)

const PluginName = "engine"

var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "NOWCAST_ENGINE_PLUGIN",
	MagicCookieValue: "e3a1c0f2-nowcast-engine",
}

func PluginMap(impl Engine) map[string]plugin.Plugin {
	return map[string]plugin.Plugin{
		PluginName: &EnginePlugin{Impl: impl},
	}
}

// EnginePlugin exposes an Engine over the go-plugin net/rpc protocol.
type EnginePlugin struct {
	// Only set in the host process.
	Impl Engine
}

func (p *EnginePlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &RPCServer{Impl: p.Impl}, nil
}

func (p *EnginePlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &RPCClient{client: c}, nil
}

// gob cannot carry arbitrary values in interfaces, so engine options travel as
// json.
type InvokeArgs struct {
	Region           string
	Cases            table.EngineTable
	IncubationPeriod types.Delay
	ReportingDelay   types.Delay
	GenerationTime   types.Delay
	EngineOptions    []byte
	TargetFolder     string
}

func toInvokeArgs(req Request) (InvokeArgs, error) {
	options, err := json.Marshal(req.Delays.EngineOptions)
	if err != nil {
		return InvokeArgs{}, fmt.Errorf("error encoding engine options: %w", err)
	}
	return InvokeArgs{
		Region:           req.Region,
		Cases:            req.Cases,
		IncubationPeriod: req.Delays.IncubationPeriod,
		ReportingDelay:   req.Delays.ReportingDelay,
		GenerationTime:   req.Delays.GenerationTime,
		EngineOptions:    options,
		TargetFolder:     req.TargetFolder,
	}, nil
}

func (args InvokeArgs) toRequest() (Request, error) {
	var options map[string]any
	if err := json.Unmarshal(args.EngineOptions, &options); err != nil {
		return Request{}, fmt.Errorf("error decoding engine options: %w", err)
	}
	return Request{
		Region: args.Region,
		Cases:  args.Cases,
		Delays: types.DelayParameters{
			IncubationPeriod: args.IncubationPeriod,
			ReportingDelay:   args.ReportingDelay,
			GenerationTime:   args.GenerationTime,
			EngineOptions:    options,
			TargetFolder:     args.TargetFolder,
		},
		TargetFolder: args.TargetFolder,
	}, nil
}

// RPCClient is the Engine the pipeline holds, forwarding calls to the host process.
type RPCClient struct{ client *rpc.Client }

func (m *RPCClient) Invoke(ctx context.Context, req Request) (Result, error) {
	args, err := toInvokeArgs(req)
	if err != nil {
		return Result{}, err
	}

	call := m.client.Go("Plugin.Invoke", args, new(Result), nil)
	select {
	case <-call.Done:
		if call.Error != nil {
			return Result{}, call.Error
		}
		return *call.Reply.(*Result), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// RPCServer is the net/rpc service RPCClient talks to.
type RPCServer struct {
	Impl Engine
}

func (m *RPCServer) Invoke(args InvokeArgs, resp *Result) error {
	req, err := args.toRequest()
	if err != nil {
		return err
	}
	res, err := m.Impl.Invoke(context.Background(), req)
	*resp = res
	return err
}
