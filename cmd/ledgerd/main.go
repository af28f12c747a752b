// Command ledgerd runs a development ledger node hosting the mukon program.
package main

import (
	"context"
	"log"

	"github.com/mirokugang/mukon/internal/server"
	"github.com/mirokugang/mukon/internal/server/config"
)

func main() {

	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)

}
