// Command bftsim runs the BFT protocol simulator: it loads simulation.ini,
// sweeps the configured cluster sizes, injects one batch of client requests
// per run and writes a per-size result stream.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/bftsim/internal/config"
	"github.com/adred-codev/bftsim/internal/monitoring"
	"github.com/adred-codev/bftsim/internal/network"
	"github.com/adred-codev/bftsim/internal/node"
	"github.com/adred-codev/bftsim/internal/sim"
)

func main() {
	var (
		configPath = flag.String("config", "simulation.ini", "path to the INI configuration file")
		debug      = flag.Bool("debug", false, "enable debug logging (overrides log.level)")
	)
	flag.Parse()

	// .env is optional; environment overrides win over the INI either way.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.Log.Level = "debug"
	}

	logger := monitoring.NewLogger(monitoring.LoggerConfig{
		Level:  monitoring.LogLevel(cfg.Log.Level),
		Format: monitoring.LogFormat(cfg.Log.Format),
	})

	nodeType, err := node.ParseType(cfg.Node.NodeType)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid node type")
	}

	sizes, err := cfg.ClusterSizes()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid cluster size sweep")
	}

	if cfg.Metrics.Enabled {
		monitoring.ServeMetrics(cfg.Metrics.ListenAddr)
		logger.Info().Str("addr", cfg.Metrics.ListenAddr).Msg("metrics endpoint started")
	}

	sinks, err := monitoring.NewDebugSinks(cfg.Log.Dir, cfg.Log.Debug)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open debug sinks")
	}
	defer sinks.Close()

	for _, n := range sizes {
		cfg.Node.Nodes = n
		if err := runOnce(cfg, nodeType, sinks, logger); err != nil {
			logger.Fatal().Err(err).Int("nodes", n).Msg("simulation run failed")
		}
	}
}

// runOnce executes the simulation for a single cluster size.
func runOnce(cfg *config.Config, nodeType node.Type, sinks *monitoring.DebugSinks, logger zerolog.Logger) error {
	n := cfg.Node.Nodes
	logger.Info().
		Int("nodes", n).
		Stringer("node_type", nodeType).
		Uint32("requests", cfg.Simulation.Requests).
		Msg("starting simulation run")

	var results sim.ResultLogger = monitoring.NopResults{}
	var writer *monitoring.ResultWriter
	if cfg.Log.Result {
		var err error
		writer, err = monitoring.OpenResultWriter(cfg.Log.Dir, n, cfg.Simulation.Requests, cfg.Network.OmissionProbability)
		if err != nil {
			return err
		}
		defer writer.Close()
		results = writer
	}

	net, err := network.New(network.Config{
		OmissionProbability: cfg.Network.OmissionProbability,
		DelayMin:            cfg.Network.DelayMin,
		DelayMax:            cfg.Network.DelayMax,
		Seed:                cfg.Network.Seed,
	}, sinks.Simulation)
	if err != nil {
		return err
	}

	nodes, err := node.BuildCluster(nodeType, n, results, sinks.Nodes)
	if err != nil {
		return err
	}

	simulation, err := sim.New(sim.Params{
		Nodes:               nodes,
		Network:             net,
		Results:             results,
		Logger:              sinks.Simulation,
		ClientTimeoutMillis: cfg.Node.ClientTimeout,
		RequestTarget:       node.RequestTarget(nodeType),
		NewRequest: func(op uint64) sim.Message {
			return node.NewRequest(nodeType, op)
		},
	})
	if err != nil {
		return err
	}

	simulation.Sender() <- sim.AdminEvent{
		Kind: sim.AdminClientRequests,
		Batch: sim.RequestBatchConfig{
			Number:   cfg.Simulation.Requests,
			Interval: cfg.Simulation.RequestInterval,
		},
	}

	simulation.Run()

	logger.Info().Int("nodes", n).Msg("simulation run finished")
	return nil
}
