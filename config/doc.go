// Package config defines the batchflow engine configuration and its
// loader.
//
// Configuration is an explicit value passed into the engine entry
// point; there is no process-wide settings singleton. Precedence is
// defaults, then YAML file, then BATCHFLOW_* environment variables:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("batchflow.yaml").
//	    Load()
package config
