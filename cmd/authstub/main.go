package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"authgate/internal/app"
	"authgate/internal/config"
	"authgate/internal/lib/logger"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file (or use CONFIG_PATH env)")
	flag.Parse()

	cfg := config.MustLoad(config.FetchConfigPath(configPath))

	log, err := logger.Setup(cfg.Env, os.Stdout)
	if err != nil {
		panic(err)
	}
	log.Info("starting authstub issuer")

	application := app.MustNew(log, cfg.Issuer)

	go application.HTTPSrv.MustRun()
	go application.GRPCSrv.MustRun()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	application.Stop()

	log.Info("authstub issuer stopped")
}
