package main

import (
	"flag"

	"github.com/joho/godotenv"
	"go.uber.org/fx"

	"github.com/lfmelo/dealdesk/internal/agent"
	"github.com/lfmelo/dealdesk/internal/config"
)

func main() {
	configFlag := flag.String("config", config.Path(), "path to config.toml")
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	// A local .env can carry DEALDESK_* overrides; absence is fine.
	_ = godotenv.Load()

	app := fx.New(
		agent.Module(agent.Params{
			ConfigPath: *configFlag,
			Profile:    *profileFlag,
		}),
	)

	app.Run()
}
