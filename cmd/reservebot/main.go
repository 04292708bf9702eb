// Command reservebot runs the restaurant reservation Telegram bot.
package main

import (
	"fmt"
	"log"

	"github.com/m3rciful/reservebot/bot/app"
	"github.com/m3rciful/reservebot/bot/config"
	corecmd "github.com/m3rciful/reservebot/core/cmd"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			cfg, err := config.Load(path)
			if err != nil {
				return nil, err
			}
			return cfg, nil
		},
		Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			botCfg, ok := cfg.(*config.Config)
			if !ok {
				return nil, fmt.Errorf("unexpected config type %T", cfg)
			}
			a, err := app.Bootstrap(botCfg)
			if err != nil {
				return nil, err
			}
			return a, nil
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
