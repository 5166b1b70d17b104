package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/prixcenter/wlink/config"
	"github.com/prixcenter/wlink/internal/app"
	"github.com/prixcenter/wlink/internal/bridgeapi"
	"github.com/prixcenter/wlink/internal/webserver"
)

var (
	cfile  = flag.String("c", "/etc/wlink.yml", "config file")
	initdb = flag.Bool("initdb", false, "drop and recreate the database schema, then exit")
)

func main() {
	flag.Parse()

	cfg := config.LoadConfig(*cfile)
	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	if *initdb {
		application.InitDb()
		zap.L().Info("database schema recreated")
		return
	}

	webserver.Init(cfg, application.DB())
	bridgeapi.Init(cfg, application.Store(), application.Relay(), application.Instances(), application.Platform())

	go func() {
		if err := webserver.Listen(); err != nil {
			zap.L().Fatal("web server stopped", zap.Error(err))
		}
	}()
	zap.L().Info("wlink bridge started",
		zap.String("host", cfg.Web.Host), zap.Int("port", cfg.Web.Port),
		zap.String("gateway", cfg.Gateway.URL))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	zap.L().Info("shutting down")
}
