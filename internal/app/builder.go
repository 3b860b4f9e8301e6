package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/EgorLis/collab-notes/internal/auth/blacklist"
	"github.com/EgorLis/collab-notes/internal/auth/password"
	"github.com/EgorLis/collab-notes/internal/auth/token"
	"github.com/EgorLis/collab-notes/internal/bus"
	"github.com/EgorLis/collab-notes/internal/config"
	redisx "github.com/EgorLis/collab-notes/internal/infra/cache/redis"
	"github.com/EgorLis/collab-notes/internal/infra/database/postgres"
	s3storage "github.com/EgorLis/collab-notes/internal/infra/storage/s3"
	"github.com/EgorLis/collab-notes/internal/presence"
	"github.com/EgorLis/collab-notes/internal/transport/web"
)

type App struct {
	config *config.Config
	server *web.Server
	log    *log.Logger
	repo   *postgres.PGRepo
	cache  *redisx.Cache // nil, если оба бэкенда in-memory
	// закрываются при остановке, в обратном порядке
	closers []func()
	cancel  context.CancelFunc
}

func Build(ctx context.Context, args []string) (*App, error) {
	base := log.New(os.Stdout, "[app] ", log.LstdFlags)

	serverLog := log.New(base.Writer(), base.Prefix()+"[server] ", base.Flags())
	pgLog := log.New(base.Writer(), base.Prefix()+"[postgres] ", base.Flags())
	s3Log := log.New(base.Writer(), base.Prefix()+"[s3] ", base.Flags())
	redisLog := log.New(base.Writer(), base.Prefix()+"[redis] ", base.Flags())
	busLog := log.New(base.Writer(), base.Prefix()+"[bus] ", base.Flags())

	cfg, err := config.Load(args)
	if err != nil {
		return nil, fmt.Errorf("failed load config: %w", err)
	}
	base.Printf("\n  configuration: %s-------------------", cfg)

	base.Println("init PostgreSQL")
	pgRepo, err := postgres.NewPGRepo(ctx, pgLog, cfg.GetDSN(), cfg.DBScheme)
	if err != nil {
		return nil, fmt.Errorf("failed init postgres: %w", err)
	}
	base.Println("PostgreSQL is initialized")

	a := &App{config: cfg, log: base, repo: pgRepo}

	base.Println("init S3 storage")
	s3cfg := s3storage.Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		UseSSL:    cfg.S3UseSSL,
		PathStyle: cfg.S3PathStyle,
	}
	s3, err := s3storage.New(ctx, s3cfg, s3Log)
	if err != nil {
		pgRepo.Close()
		return nil, fmt.Errorf("failed init s3: %w", err)
	}
	base.Println("S3 storage is initialized")

	if cfg.NeedsRedis() {
		base.Println("init Redis")
		rc := redisx.New(redisx.Config{
			Addr:     cfg.RedisAddr,
			DB:       cfg.RedisDB,
			Password: cfg.RedisPassword,
		}, redisLog)
		if err := rc.Ping(ctx); err != nil {
			pgRepo.Close()
			rc.Close()
			return nil, fmt.Errorf("failed init redis: %w", err)
		}
		a.cache = rc
		base.Println("Redis is initialized")
	}

	// Real-time backends
	rt := web.Realtime{}
	switch cfg.PresenceBackend {
	case config.BackendRedis:
		rt.Presence = presence.NewKVRegistry(a.cache, cfg.PresenceTTL)
	default:
		mem := presence.NewMemory(cfg.PresenceTTL)
		a.closers = append(a.closers, mem.Close)
		rt.Presence = mem
	}
	switch cfg.BusBackend {
	case config.BackendRedis:
		b := bus.NewBridged(busLog, a.cache, cfg.BusQueueSize, cfg.BusPublishTimeout)
		a.closers = append(a.closers, b.Close)
		rt.Bus = b
	default:
		h := bus.NewHub(cfg.BusQueueSize)
		a.closers = append(a.closers, h.Close)
		rt.Bus = h
	}
	base.Printf("real-time: presence=%s bus=%s", cfg.PresenceBackend, cfg.BusBackend)

	// Auth primitives
	hasher := password.NewDefault()
	tm := token.New(cfg.AuthJWTSecret, cfg.AuthIssuer, cfg.AuthTokenTTL)
	var revoked blacklist.KV = blacklist.NewMemoryKV()
	if a.cache != nil {
		revoked = a.cache
	}
	bl := blacklist.NewStore(revoked)

	probes := web.Probes{DB: pgRepo, Storage: s3}
	if a.cache != nil {
		probes.Cache = a.cache
	}

	base.Println("init Server")
	srvCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	rep := web.Repos{Users: pgRepo, Notes: pgRepo, Grants: pgRepo, Ops: pgRepo}
	ad := web.AuthDeps{Hasher: hasher, Tokens: tm, Blacklist: bl}
	a.server = web.New(srvCtx, serverLog, cfg, rep, ad, rt, s3, probes)
	base.Println("Server is initialized")

	base.Println("build ended")
	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	a.log.Println("start application...")
	go a.server.Run()
	<-ctx.Done()
	a.log.Println("stop application...")

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// сначала рвём websocket-сессии; Close ждёт их уборку (presence, user_left),
	// и только потом закрываются шина, Redis и пул
	a.cancel()
	a.server.Close(stopCtx)
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.repo.Close()
	if a.cache != nil {
		a.cache.Close()
	}

	return nil
}
