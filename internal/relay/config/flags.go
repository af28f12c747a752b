package config

import (
	"flag"
	"os"

	"github.com/mirokugang/mukon/internal/flagx"
)

// parseFlags overlays command-line flags:
//
//	-a string   websocket bind address
//	-g string   ledger gRPC address used to authorize joins
//	-r string   Redis address for multi-instance fan-out
//	-l string   log level
func parseFlags(config *Config) error {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-r", "-l"})

	fs := flag.NewFlagSet("relay", flag.ContinueOnError)
	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run relay")
	fs.StringVar(&config.LedgerAddr, "g", config.LedgerAddr, "ledger gRPC address")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	return fs.Parse(args)
}
