package main

import (
	"log"

	_ "github.com/joho/godotenv/autoload"
	"github.com/laerinok/vs-mods-updater/cmd/vsmu"
)

func main() {
	err := vsmu.Execute()
	if err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
