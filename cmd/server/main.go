package main

import (
	"fmt"
	"os"

	"github.com/openwild/sightline-backend/internal/app"
)

func main() {
	application, err := app.New()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	application.Start()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	application.Log.Info("Server listening", "port", port)
	if err := application.Run(":" + port); err != nil {
		application.Log.Warn("Server failed", "error", err)
	}
}
