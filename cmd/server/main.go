package main

import (
	"os"

	"github.com/OFFIS-RIT/policygraph/internal/config"
	"github.com/OFFIS-RIT/policygraph/internal/server"
	"github.com/OFFIS-RIT/policygraph/internal/util"
	"github.com/OFFIS-RIT/policygraph/pkg/logger"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()
	config.InitLogger("", os.Stderr)

	oracle, err := config.NewOracle()
	if err != nil {
		logger.Fatal("Could not create AI client", "err", err)
	}

	server.Init(oracle)
}
