// Package config loads and validates the simulator configuration from
// simulation.ini, with environment overrides under the BFTSIM_ prefix.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for one simulator invocation.
type Config struct {
	Node       NodeConfig       `mapstructure:"node"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Log        LogConfig        `mapstructure:"log"`
	Network    NetworkConfig    `mapstructure:"network"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// NodeConfig selects the replica implementation and the cluster sizes.
type NodeConfig struct {
	// NodeType is one of dummy, pbft, zyzzyva, rbft (rbft reserved).
	NodeType string `mapstructure:"node_type"`
	// NodesVec is the whitespace-separated list of cluster sizes to sweep.
	NodesVec string `mapstructure:"nodes_vec"`
	// Nodes is the current cluster size; the sweep runner writes it per run.
	Nodes int `mapstructure:"nodes"`
	// ClientTimeout is the delay in milliseconds added when materializing a
	// timeout event into a reception.
	ClientTimeout uint64 `mapstructure:"client_timeout"`
}

// SimulationConfig controls request injection.
type SimulationConfig struct {
	// Requests is the number of client requests per batch.
	Requests uint32 `mapstructure:"requests"`
	// RequestInterval is the spacing between batched requests in
	// milliseconds.
	RequestInterval uint32 `mapstructure:"request_interval"`
}

// LogConfig controls the debug and result sinks.
type LogConfig struct {
	Debug  bool   `mapstructure:"debug"`
	Result bool   `mapstructure:"result"`
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Dir    string `mapstructure:"dir"`
}

// NetworkConfig parameterizes the stochastic network model.
type NetworkConfig struct {
	OmissionProbability float64 `mapstructure:"omission_probability"`
	DelayMin            uint32  `mapstructure:"delay_min"`
	DelayMax            uint32  `mapstructure:"delay_max"`
	// Seed makes runs reproducible; 0 seeds from entropy.
	Seed int64 `mapstructure:"seed"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load reads the INI file at path, applies defaults and environment
// overrides (BFTSIM_NODE_NODE_TYPE etc.), unmarshals and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")

	v.SetDefault("node.node_type", "pbft")
	v.SetDefault("node.nodes_vec", "4")
	v.SetDefault("node.nodes", 0)
	v.SetDefault("node.client_timeout", 500)

	v.SetDefault("simulation.requests", 1)
	v.SetDefault("simulation.request_interval", 1000)

	v.SetDefault("log.debug", false)
	v.SetDefault("log.result", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.dir", "log")

	v.SetDefault("network.omission_probability", 0.0)
	v.SetDefault("network.delay_min", 10)
	v.SetDefault("network.delay_max", 100)
	v.SetDefault("network.seed", 0)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9095")

	v.SetEnvPrefix("BFTSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors, naming the offending key.
func (c *Config) Validate() error {
	validNodeTypes := map[string]bool{"dummy": true, "pbft": true, "zyzzyva": true, "rbft": true}
	if !validNodeTypes[c.Node.NodeType] {
		return fmt.Errorf("node.node_type must be one of: dummy, pbft, zyzzyva, rbft (got: %s)", c.Node.NodeType)
	}

	if _, err := c.ClusterSizes(); err != nil {
		return err
	}

	if c.Simulation.Requests < 1 {
		return fmt.Errorf("simulation.requests must be > 0, got %d", c.Simulation.Requests)
	}

	if p := c.Network.OmissionProbability; p < 0 || p > 1 {
		return fmt.Errorf("network.omission_probability must be in [0,1], got %g", p)
	}
	if c.Network.DelayMax < c.Network.DelayMin {
		return fmt.Errorf("network.delay_max (%d) must be >= network.delay_min (%d)",
			c.Network.DelayMax, c.Network.DelayMin)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error (got: %s)", c.Log.Level)
	}
	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: json, pretty (got: %s)", c.Log.Format)
	}

	return nil
}

// ClusterSizes parses node.nodes_vec into the list of cluster sizes to
// sweep.
func (c *Config) ClusterSizes() ([]int, error) {
	fields := strings.Fields(c.Node.NodesVec)
	if len(fields) == 0 {
		return nil, fmt.Errorf("node.nodes_vec must list at least one cluster size")
	}

	sizes := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("node.nodes_vec entry %q is not a positive integer", f)
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}
