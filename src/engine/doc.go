// Package engine assembles and runs a delta node from a config.Config.
package engine
