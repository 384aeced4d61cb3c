// Package config loads and validates the daemon configuration surface.
//
// Config is layered, lowest precedence first: Default() values, then a YAML
// file (passed explicitly, or read from FASTSEARCH_CONFIG, or omitted
// entirely), then FASTSEARCH_-prefixed environment variables (dots become
// underscores: FASTSEARCH_DAEMON_SOCKET_PATH overrides daemon.socket_path).
// FASTSEARCH_DB is read directly into Config.DBPath since the store path is
// a standalone override, not part of the structured tree.
//
//	cfg, err := config.Load("/etc/fastsearch/config.yaml")
//
// Watch re-reads and re-validates the file on every write and invokes a
// callback with the new Config. The reload_config RPC method does not go
// through Watch; it calls Load, and the daemon starts no Watcher itself.
package config
