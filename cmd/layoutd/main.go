package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/gaspardpetit/layoutd/internal/admin"
	"github.com/gaspardpetit/layoutd/internal/advertise"
	"github.com/gaspardpetit/layoutd/internal/config"
	"github.com/gaspardpetit/layoutd/internal/layout"
	"github.com/gaspardpetit/layoutd/internal/logx"
	"github.com/gaspardpetit/layoutd/internal/metrics"
	"github.com/gaspardpetit/layoutd/internal/server"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// run parses args, serves the layout until ctx is done and returns the exit
// code.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	var cfg config.ServerConfig
	// Resolve config with precedence: defaults < file < env < args
	cfg.SetDefaults()
	cfg.ApplyEnv()
	explicit := false
	if p, ok := config.ConfigFileFromArgs(args); ok {
		cfg.ConfigFile, explicit = p, true
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && (explicit || !errors.Is(err, os.ErrNotExist)) {
			_, _ = fmt.Fprintf(stderr, "load config %s: %v\n", cfg.ConfigFile, err)
			return 1
		}
	}
	cfg.ApplyEnv()

	fs := pflag.NewFlagSet("layoutd", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	showVersion := fs.Bool("version", false, "print version and exit")
	cfg.BindFlags(fs)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "usage: layoutd [options] /path/to/layout.touchosc\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 1
	}
	if *showVersion {
		_, _ = fmt.Fprintf(stderr, "layoutd version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return 0
	}
	if fs.NArg() > 0 {
		cfg.LayoutPath = fs.Arg(0)
	}
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(stderr, "layoutd: %v\n", err)
		fs.Usage()
		return 1
	}

	logx.Configure(cfg.LogLevel)
	metrics.SetBuildInfo(version, buildSHA, buildDate)

	l, err := layout.Load(cfg.LayoutPath)
	if err != nil {
		logx.Log.Error().Err(err).Msg("load layout")
		return 1
	}

	var adv advertise.Advertiser = advertise.None{}
	if !cfg.NoDiscovery {
		adv = &advertise.Zeroconf{
			ServiceType: cfg.ServiceType,
			Domain:      cfg.Domain,
			Text:        []string{"layout=" + l.Name()},
			Log:         logx.Component(logx.Log, "mdns"),
		}
	}
	ctrl, err := server.New(l, server.Options{
		Name:            cfg.Name,
		Host:            cfg.Host,
		Port:            cfg.Port,
		Advertiser:      adv,
		MediaType:       cfg.MediaType,
		Extension:       config.LayoutExtension,
		ConnTimeout:     cfg.ConnTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logx.Component(logx.Log, "layout"))
	if err != nil {
		logx.Log.Error().Err(err).Msg("create layout server")
		return 1
	}

	var adminSrv *http.Server
	if cfg.AdminAddr != "" {
		adminSrv = &http.Server{Addr: cfg.AdminAddr, Handler: admin.New(ctrl), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logx.Log.Info().Str("addr", cfg.AdminAddr).Msg("admin server starting")
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logx.Log.Error().Err(err).Msg("admin server error")
			}
		}()
	}

	if err := ctrl.Start(ctx); err != nil {
		logx.Log.Error().Err(err).Msg("start layout server")
		shutdownAdmin(adminSrv)
		return 1
	}
	served := ctrl.Payload()
	logx.Log.Info().Str("name", cfg.Name).Str("layout", served.Name()).Int("bytes", served.Len()).Stringer("addr", ctrl.Addr()).Msg("layout server started")

	<-ctx.Done()
	logx.Log.Info().Msg("termination requested")
	ctrl.Stop()
	shutdownAdmin(adminSrv)
	return 0
}

func shutdownAdmin(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logx.Log.Error().Err(err).Msg("admin server shutdown")
	}
}
