package main

import (
	"github.com/BioHazard786/Pairlink/cmd"
	"github.com/BioHazard786/Pairlink/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cmd.Execute()
}
