// xtid prints an x-client-transaction-id for one request. It signs from
// live fetches by default, or from a saved home page and script.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/pflag"

	"xtid/internal/config"
	"xtid/internal/fetch"
	"xtid/internal/signer"
	"xtid/transaction"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	method     string
	path       string
	htmlFile   string
	scriptFile string
	time       int64
	configPath string
	saveConfig string
	browser    bool
	verbose    bool
}

func run(args []string, stdout, stderr io.Writer) error {
	var opts options
	flagSet := pflag.NewFlagSet("xtid", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&opts.method, "method", "X", http.MethodGet, "HTTP method of the request to sign")
	flagSet.StringVarP(&opts.path, "path", "p", "", "URL path of the request to sign, e.g. /i/api/1.1/jot/client_event.json")
	flagSet.StringVar(&opts.htmlFile, "html", "", "read the home page from this file instead of fetching it")
	flagSet.StringVar(&opts.scriptFile, "script", "", "read the on-demand script from this file instead of fetching it")
	flagSet.Int64Var(&opts.time, "time", -1, "seconds since the token epoch (default: now)")
	flagSet.StringVarP(&opts.configPath, "config", "c", "xtid.yml", "YAML config file; XTID_* variables override it")
	flagSet.StringVar(&opts.saveConfig, "save-config", "", "write the effective configuration to this file and exit")
	flagSet.BoolVar(&opts.browser, "browser", false, "fetch through headless Chrome")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log fetches and key material to stderr")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("browser") {
		cfg.Browser = opts.browser
	}
	if flagSet.Changed("verbose") {
		cfg.Verbose = opts.verbose
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if opts.saveConfig != "" {
		return cfg.Save(opts.saveConfig)
	}
	if strings.TrimSpace(opts.path) == "" {
		return fmt.Errorf("--path is required")
	}

	logOut := io.Discard
	if cfg.Verbose {
		logOut = stderr
	}
	logger := log.New(logOut, "", log.LstdFlags|log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sess, err := loadSession(ctx, cfg, opts, logger)
	if err != nil {
		return err
	}
	var genOpts []transaction.Option
	if opts.time >= 0 {
		genOpts = append(genOpts, transaction.WithTime(opts.time))
	}
	tok, err := sess.TransactionID(strings.ToUpper(opts.method), opts.path, genOpts...)
	if err != nil {
		return err
	}
	logger.Printf("animation key %s", sess.AnimationKey())
	fmt.Fprintln(stdout, tok)
	return nil
}

func loadSession(ctx context.Context, cfg *config.Config, opts options, logger *log.Logger) (*transaction.Session, error) {
	if opts.htmlFile != "" && opts.scriptFile != "" {
		home, err := os.ReadFile(opts.htmlFile)
		if err != nil {
			return nil, err
		}
		script, err := os.ReadFile(opts.scriptFile)
		if err != nil {
			return nil, err
		}
		return transaction.NewSession(string(home), string(script))
	}

	header := http.Header{}
	header.Set("User-Agent", cfg.UserAgent)
	header.Set("Accept-Language", cfg.AcceptLanguage)
	var f fetch.Fetcher
	if cfg.Browser {
		b := fetch.NewBrowserFetcher(cfg.BrowserTimeout, logger)
		defer b.Close()
		f = b
	} else {
		f = fetch.NewHTTPFetcher(cfg.Timeout, header, logger)
	}

	if opts.htmlFile != "" {
		home, err := os.ReadFile(opts.htmlFile)
		if err != nil {
			return nil, err
		}
		return transaction.Initialize(ctx, string(home), f, transaction.InitOptions{
			Header:            header,
			OnDemandURLFormat: cfg.OnDemandURLFormat,
		})
	}

	s := signer.New(signer.Config{
		Fetcher:           f,
		HomeURL:           cfg.HomeURL,
		OnDemandURLFormat: cfg.OnDemandURLFormat,
		Header:            header,
		Verbose:           cfg.Verbose,
		Logger:            logger,
	})
	return s.Session(ctx)
}
