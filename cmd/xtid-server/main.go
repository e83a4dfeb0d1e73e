package main

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"

	"xtid/internal/config"
	"xtid/internal/fetch"
	"xtid/internal/server"
	"xtid/internal/signer"
)

// browserFetcher is the part of *fetch.BrowserFetcher the server owns.
type browserFetcher interface {
	fetch.Fetcher
	Close()
}

var newBrowserFetcher = func(timeout time.Duration, logger *log.Logger) browserFetcher {
	return fetch.NewBrowserFetcher(timeout, logger)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(os.Stdout)

	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

// run returns instead of exiting so the browser is closed on every path.
func run(args []string) error {
	flagSet := pflag.NewFlagSet("xtid-server", pflag.ContinueOnError)
	addrFlag := flagSet.String("addr", "", "listen address, e.g. :81 or 0.0.0.0:8081 (default from config)")
	configPath := flagSet.StringP("config", "c", "xtid.yml", "YAML config file; XTID_* variables override it")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if *addrFlag != "" {
		cfg.Addr = *addrFlag
	}
	if env := os.Getenv("PORT"); env != "" {
		cfg.Addr = ":" + env
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	header := http.Header{}
	header.Set("User-Agent", cfg.UserAgent)
	header.Set("Accept-Language", cfg.AcceptLanguage)
	var f fetch.Fetcher = fetch.NewHTTPFetcher(cfg.Timeout, header, log.Default())
	if cfg.Browser {
		b := newBrowserFetcher(cfg.BrowserTimeout, log.Default())
		defer b.Close()
		f = b
	}

	sg := signer.New(signer.Config{
		Fetcher:           f,
		HomeURL:           cfg.HomeURL,
		OnDemandURLFormat: cfg.OnDemandURLFormat,
		Header:            header,
		RefreshInterval:   cfg.RefreshInterval,
		Verbose:           cfg.Verbose,
		Logger:            log.Default(),
	})
	handler := server.New(server.Config{Signer: sg, Logger: log.Default()})
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: handler,
		// Conservative timeouts to avoid slowloris and leaked connections blocking the server
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          log.New(os.Stdout, "HTTPERR ", log.LstdFlags|log.Lmicroseconds),
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen error on %s: %w", cfg.Addr, err)
	}

	log.Println("Listening on", cfg.Addr)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
