// Package config provides configuration parsing for viewbridge projects.
//
// The configuration is stored in viewbridge.toml or viewbridge.json at the
// project root. Both formats share one schema; TOML wins when both exist.
// Relative paths resolve against the directory holding the file.
//
// # Configuration File Structure
//
//	socket = "tmp/sockets/viewbridge.sock"
//	appRoot = "app"
//	debug = false
//
//	[client]
//	dialTimeout = "1s"
//	ioTimeout = "30s"
//	idleTimeout = "90s"
//	maxAttempts = 2
//
//	[service]
//	layout = "Application"
//	imports = ["htmx.org", "alpinejs"]
//	concurrency = 8
//	shutdownTimeout = "30s"
//
//	[artifacts]
//	source = "s3"
//	bucket = "views"
//	prefix = "release-42"
//	region = "eu-west-1"
//
//	[metrics]
//	namespace = "viewbridge"
//	listen = "127.0.0.1:9464"
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//	client, err := ipc.NewClient(cfg.ClientConfig())
package config
