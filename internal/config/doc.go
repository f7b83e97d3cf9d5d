// Package config loads mapdap settings.
//
// Settings are layered, higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  3. Environment (MAPDAP_*)  │  ← Highest priority
//	├─────────────────────────────┤
//	│  2. Config file             │  ← mapdap.toml or mapdap.yaml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// A config file looks like:
//
//	[sourceMaps]
//	enabled = true
//	outFiles = ["dist/**/*.js"]
//	watch = true
//
//	[ledger]
//	capacity = 256
//
//	[logging]
//	level = "debug"
//	format = "json"
//
// Load returns a validated Config; invalid values yield a ValidationError.
package config
