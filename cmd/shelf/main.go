package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/justyntemme/shelf/internal/api"
	"github.com/justyntemme/shelf/internal/api/httpapi"
	"github.com/justyntemme/shelf/internal/api/localfs"
	"github.com/justyntemme/shelf/internal/app"
	"github.com/justyntemme/shelf/internal/config"
	"github.com/justyntemme/shelf/internal/logging"
	"github.com/justyntemme/shelf/internal/metrics"
	"github.com/justyntemme/shelf/internal/notify"
	"github.com/justyntemme/shelf/internal/preview"
	"github.com/justyntemme/shelf/internal/store"
	"github.com/justyntemme/shelf/internal/view"
)

const usage = `usage: shelf [flags] <command> [args]

commands:
  ls [location]            list a folder or :recent, :favorites, :shared, :trash
  watch [location]         list, then re-list whenever the folder changes
  mkdir <parent> <name>    create a folder
  rename <path> <name>     rename an item
  mv <path>... <dest>      move items into a folder
  rm <path>...             delete items
  restore <name>           restore an item from the trash (local only)
  fav add|rm|ls [path]     manage favorites
  preview <path> [action]...
                           probe a media item; actions: zoom-in, zoom-out,
                           rotate-left, rotate-right
  config init              write a default config file
  config api <url> [token] use a collection service by default
  config hidden on|off     show dotfiles in the local backend
  config sort <field> [desc]
                           set the default sort

flags:
`

type options struct {
	debug       bool
	configPath  string
	root        string
	apiURL      string
	metricsAddr string
	query       string
	sort        string
	desc        bool
}

func main() {
	var opts options
	flag.BoolVar(&opts.debug, "debug", false, "Enable verbose debug logging")
	flag.StringVar(&opts.configPath, "config", "", "Path to config.json")
	flag.StringVar(&opts.root, "root", "", "Serve this directory instead of the configured root")
	flag.StringVar(&opts.apiURL, "api", "", "Use the collection service at this URL")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.StringVar(&opts.query, "q", "", `Filter the listing, e.g. "kind:image size:>1MB vac"`)
	flag.StringVar(&opts.sort, "sort", "", "Sort by name, modified, size or kind")
	flag.BoolVar(&opts.desc, "desc", false, "Sort descending")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(opts, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "shelf:", err)
		os.Exit(1)
	}
}

func run(opts options, args []string) error {
	if len(args) == 0 {
		flag.Usage()
		return errors.New("no command")
	}

	if len(args) == 2 && args[0] == "config" && args[1] == "init" {
		backup, err := config.GenerateConfig(opts.configPath)
		if err != nil {
			return err
		}
		if backup != "" {
			fmt.Println("previous config saved to", backup)
		}
		return nil
	}

	cfgMgr := config.NewManager()
	if err := cfgMgr.Load(opts.configPath); err != nil {
		return err
	}
	if args[0] == "config" {
		return configure(cfgMgr, args[1:])
	}
	cfg := cfgMgr.Get()

	logCfg := logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, OutputPath: cfg.Logging.Output}
	if opts.debug {
		logCfg.Level = "debug"
	}
	if err := logging.Init(logCfg); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.Sync()
	if perr := cfgMgr.ParseError(); perr != nil {
		logging.Warn("config could not be parsed, using defaults", zap.Error(perr))
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	if opts.metricsAddr != "" {
		srv := &http.Server{Addr: opts.metricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("metrics server", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	env, err := newEnv(opts, cfg, db)
	if err != nil {
		return err
	}
	defer env.close()

	return env.dispatch(args)
}

// env holds the browser and the backend it runs against.
type env struct {
	cfg     config.Config
	db      *store.DB
	coll    api.Collection
	local   *localfs.Collection
	watcher *localfs.Watcher
	browser *app.Browser
	query   string
}

func newEnv(opts options, cfg config.Config, db *store.DB) (*env, error) {
	e := &env{cfg: cfg, db: db, query: opts.query}

	baseURL := cfg.API.BaseURL
	if opts.apiURL != "" {
		baseURL = opts.apiURL
	}
	prober := preview.NewProber()

	if baseURL != "" && opts.root == "" {
		e.coll = httpapi.New(httpapi.Config{
			BaseURL:     baseURL,
			Timeout:     cfg.API.Timeout(),
			AuthToken:   cfg.API.Token,
			ListRetries: uint64(max(cfg.API.ListRetries, 0)),
		})
		prober.Token = cfg.API.Token
	} else {
		root := cfg.Local.Root
		if opts.root != "" {
			root = opts.root
		}
		local, err := localfs.New(localfs.Config{
			Root:        root,
			ShowHidden:  cfg.Local.ShowHidden,
			UseTrash:    cfg.Local.Trash,
			RecentLimit: cfg.Local.RecentLimit,
			Favorites:   db,
		})
		if err != nil {
			return nil, err
		}
		e.local, e.coll = local, local
		if cfg.Local.Watch {
			if e.watcher, err = local.NewWatcher(cfg.Local.WatchDebounce()); err != nil {
				logging.Warn("folder watching disabled", zap.Error(err))
			}
		}
	}

	sortOpt := view.Sort{Descending: cfg.Browser.SortDescending}
	if f, ok := view.ParseField(cfg.Browser.DefaultSort); ok {
		sortOpt.Field = f
	}

	bopts := app.Options{
		Notifications: notify.Durations{
			Default: cfg.Notifications.Default(),
			Error:   cfg.Notifications.Error(),
		},
		SearchDebounce: cfg.Browser.SearchDebounce(),
		Preview: preview.Options{
			MinZoom:  cfg.Preview.MinZoom,
			MaxZoom:  cfg.Preview.MaxZoom,
			ZoomStep: cfg.Preview.ZoomStep,
		},
		Loader:   prober,
		Sort:     sortOpt,
		Settings: db,
	}
	if e.watcher != nil {
		bopts.Watcher = e.watcher
	}
	e.browser = app.New(e.coll, bopts)

	if opts.sort != "" {
		f, ok := view.ParseField(opts.sort)
		if !ok {
			return nil, fmt.Errorf("unknown sort field %q", opts.sort)
		}
		e.browser.SetSort(view.Sort{Field: f, Descending: opts.desc})
	} else if opts.desc {
		s := e.browser.Snapshot().Sort
		s.Descending = true
		e.browser.SetSort(s)
	}
	return e, nil
}

func (e *env) close() {
	e.browser.Close()
	if e.watcher != nil {
		e.watcher.Close()
	}
}

func (e *env) dispatch(args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "ls":
		return e.ls(rest)
	case "watch":
		return e.watch(rest)
	case "mkdir":
		return e.mkdir(rest)
	case "rename":
		return e.rename(rest)
	case "mv":
		return e.mv(rest)
	case "rm":
		return e.rm(rest)
	case "restore":
		return e.restore(rest)
	case "fav":
		return e.fav(rest)
	case "preview":
		return e.preview(rest)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// configure edits the config file.
func configure(m *config.Manager, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: config init|api|hidden|sort")
	}
	switch args[0] {
	case "api":
		if len(args) < 2 || len(args) > 3 {
			return errors.New("usage: config api <url> [token]")
		}
		token := ""
		if len(args) == 3 {
			token = args[2]
		}
		return m.SetAPI(args[1], token)
	case "hidden":
		if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
			return errors.New("usage: config hidden on|off")
		}
		return m.SetShowHidden(args[1] == "on")
	case "sort":
		if len(args) < 2 || len(args) > 3 {
			return errors.New("usage: config sort <field> [desc]")
		}
		f, ok := view.ParseField(args[1])
		if !ok {
			return fmt.Errorf("unknown sort field %q", args[1])
		}
		return m.SetDefaultSort(f.String(), len(args) == 3 && args[2] == "desc")
	}
	return fmt.Errorf("unknown config command %q", args[0])
}

// signalContext is cancelled on interrupt.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func argLocation(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return strings.Join(args, " ")
}
