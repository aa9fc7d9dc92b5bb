package main

import (
	"math/rand"
	"path"
	"time"

	"github.com/seocheck/headchecker/api"
	"github.com/seocheck/headchecker/inspector"
	"github.com/seocheck/headchecker/manager"
	"github.com/seocheck/headchecker/pkg/config"
	"github.com/seocheck/headchecker/pkg/dispatcher"
	"github.com/seocheck/headchecker/pkg/logging"
	"github.com/seocheck/headchecker/pkg/worker"
	"github.com/seocheck/headchecker/report"
	"github.com/seocheck/headchecker/sitemap"
	"github.com/seocheck/headchecker/taskstore"

	"github.com/alecthomas/kong"
	"github.com/go-redis/redis/v8"
)

var logger = logging.Create("main", logging.Dev)

var CLI struct {
	Serve struct {
		Bind        string `optional name:"bind" help:"Address to listen on." default:":8080"`
		DataPath    string `optional name:"data_path" help:"Path to store task artifacts." type:"existingdir" default:"."`
		RedisURL    string `optional name:"redis_url" help:"Redis URL for a shared task store; in-memory store is used when empty."`
		Workers     int    `optional name:"workers" help:"Number of concurrent analysis pipelines." default:"8"`
		Concurrency int    `optional name:"concurrency" help:"Per-task URL inspection width." default:"5"`
		Debug       bool   `optional name:"debug" help:"Debug mode."`
	} `cmd help:"Start sitemap head checker server."`
}

const sweepInterval = 10 * time.Minute

func main() {
	rand.Seed(time.Now().UTC().UnixNano())

	ctx := kong.Parse(&CLI)
	switch ctx.Command() {
	case "serve":
		serve()
	default:
		panic(ctx.Command())
	}
}

func serve() {
	cfg, err := config.Read()
	if err != nil {
		logger.Fatalw("config loading failed", "err", err)
	}

	bind := CLI.Serve.Bind
	if bind == ":8080" && cfg.GetString("bind") != "" {
		bind = cfg.GetString("bind")
	}
	redisURL := CLI.Serve.RedisURL
	if redisURL == "" {
		redisURL = cfg.GetString("redis_url")
	}
	dataPath := CLI.Serve.DataPath
	if dataPath == "." && cfg.GetString("data_path") != "" {
		dataPath = cfg.GetString("data_path")
	}
	workers := CLI.Serve.Workers
	if workers == 8 {
		workers = cfg.GetInt("pipeline_workers")
	}
	concurrency := CLI.Serve.Concurrency
	if concurrency == 5 {
		concurrency = cfg.GetInt("url_concurrency")
	}

	var store taskstore.Store
	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Fatalw("bad redis URL", "err", err)
		}
		store = taskstore.NewRedisStore(redis.NewClient(opts))
		logger.Infow("using redis task store", "addr", opts.Addr)
	} else {
		store = taskstore.NewMemoryStore()
		logger.Info("using in-memory task store")
	}

	artifactsDir := path.Join(dataPath, "artifacts")
	writer, err := report.NewCSVWriter(artifactsDir)
	if err != nil {
		logger.Fatalw("artifacts directory setup failed", "err", err)
	}

	m := manager.NewManager(manager.Configure().
		Store(store).
		Fetcher(sitemap.NewFetcher(nil)).
		Processor(inspector.NewProcessor(inspector.Configure().Store(store))).
		Writer(writer).
		Workers(workers).
		Concurrency(concurrency))

	dispatcher.RegisterMetrics()

	sweeper := worker.NewTicker(report.NewSweeper(artifactsDir, taskstore.DefaultTTL), sweepInterval)
	sweeper.Start()

	err = api.NewServer(api.Configure().
		Addr(bind).
		Debug(CLI.Serve.Debug).
		Manager(m)).
		Start()
	if err != nil {
		logger.Fatalw("http server failed", "err", err)
	}
}
