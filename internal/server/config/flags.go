package config

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/mirokugang/mukon/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-s string   storage backend ("memory" or "postgres")
//	-d string   PostgreSQL DSN
//	-n uint     directory capacity given at register
//	-l string   log level
//
// Only the flags above are kept from os.Args by flagx.FilterArgs, so the
// config file flags do not collide.
func parseFlags(config *Config) error {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-s", "-d", "-n", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.Storage, "s", config.Storage, "storage backend")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	capacity := fs.Uint("n", uint(config.DirectoryCapacity), "peer directory capacity")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *capacity > math.MaxUint16 {
		return fmt.Errorf("directory capacity %d out of range", *capacity)
	}
	config.DirectoryCapacity = uint16(*capacity)
	return nil
}
