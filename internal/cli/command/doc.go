// Package command provides the minikv-cli command tree.
//
// It uses urfave/cli/v2 for command parsing. Key/value and pub/sub commands
// talk RESP through pkg/client; load drives a pool of clients through a
// pkg/bridge work bridge; status queries the server's operations endpoint.
//
// Commands:
//
//	get KEY
//	set KEY VALUE [--expires DURATION]
//	publish CHANNEL MESSAGE
//	subscribe CHANNEL... [--count N]
//	load [--requests N] [--pool-size N] [--capacity N]
//	status
package command
