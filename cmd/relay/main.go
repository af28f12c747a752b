// Command relay runs the real-time message relay.
package main

import (
	"context"
	"log"

	"github.com/mirokugang/mukon/internal/relay/app"
	"github.com/mirokugang/mukon/internal/relay/config"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := a.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}
