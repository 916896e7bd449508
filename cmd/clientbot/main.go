package main

import (
	"log"

	"github.com/joho/godotenv"

	"membot/core/cmd"
	"membot/internal/botapp"
)

func main() {
	_ = godotenv.Load()

	err := cmd.Run(cmd.Options{
		ConfigEnvVar:      "CLIENTBOT_CONFIG",
		DefaultConfigPath: "config/clientbot.yaml",
		LoadConfig: func(path string) (cmd.ConfigCarrier, error) {
			return botapp.LoadConfig(path)
		},
		Bootstrap: func(cfg cmd.ConfigCarrier) (cmd.TelegramApp, error) {
			return botapp.NewClientApp(cfg.(*botapp.Config))
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
