package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"huddle/global"
	"huddle/logger"
	"huddle/module/chat"
	"huddle/module/updates"
	kafka "huddle/service/dispatcher/kafka"
	"huddle/service/mgo"
	"huddle/service/pg"
	"huddle/service/storage"
	redissvc "huddle/service/storage/redis"
)

func main() {
	global.LoadConfig()
	defer logger.Sync()

	if err := redissvc.InitRedis(redissvc.Config{
		Addr:     global.Conf.RedisAddr,
		Password: global.Conf.RedisPassword,
		DB:       global.Conf.RedisDB,
	}); err != nil {
		logger.Errorf("[boot] redis init failed: %v", err)
		os.Exit(1)
	}
	defer redissvc.CloseRedis()
	storage.Init(redissvc.GetRedis())

	if err := pg.InitPostgres(global.Conf.PostgresURL); err != nil {
		logger.Errorf("[boot] postgres init failed: %v", err)
		os.Exit(1)
	}
	defer pg.ClosePostgres()

	if err := mgo.InitMongo(mgo.Config{URI: global.Conf.MongoURI, Database: global.Conf.MongoDB}); err != nil {
		logger.Errorf("[boot] mongo init failed: %v", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgo.CloseMongo(ctx)
	}()

	if global.Conf.KafkaEnabled {
		if err := kafka.InitKafka(global.Conf.KafkaBrokers); err != nil {
			logger.Errorf("[boot] kafka init failed: %v", err)
			os.Exit(1)
		}
		defer kafka.CloseKafka()
	}

	db := updates.NewPgDB(pg.GetPool())
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := db.EnsureSchema(ctx)
		cancel()
		if err != nil {
			logger.Errorf("[boot] schema init failed: %v", err)
			os.Exit(1)
		}
	}

	var notifier updates.Notifier
	switch global.Conf.Notifier {
	case "nats":
		n, err := updates.NewNatsNotifier(global.Conf.NatsServers, "huddle-gateway")
		if err != nil {
			logger.Errorf("[boot] nats connect failed: %v", err)
			os.Exit(1)
		}
		notifier = n
	default:
		notifier = updates.NewRedisNotifier(redissvc.GetRedis())
	}

	seq := updates.NewSeqAllocator(redissvc.GetRedis(), db)
	svc := updates.NewService(db, seq, notifier, updates.ServiceConf{})
	defer svc.Stop()

	// age-based retention off by default; see HUDDLE_UPDATE_MAX_AGE
	if maxAge := sweepMaxAge(); maxAge > 0 {
		sweeper := updates.NewSweeper(db, maxAge, time.Hour)
		sweeper.Start()
		defer sweeper.Stop()
	}

	chatSvc := chat.NewChatService(svc, global.Conf.KafkaEnabled)

	updHandler := updates.NewHandler(svc)
	updHandler.OnPresenceChange(chatSvc.NotifyPresence)

	r := gin.New()
	r.Use(gin.Recovery())
	updates.RegisterRoutes(r, updHandler)
	chat.RegisterRoutes(r, chat.NewHandler(chatSvc))

	srv := &http.Server{Addr: global.Conf.HTTPAddr, Handler: r}
	go func() {
		logger.Infof("[boot] listening on %s", global.Conf.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("[boot] http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("[boot] shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warnf("[boot] shutdown: %v", err)
	}
}

func sweepMaxAge() time.Duration {
	v := os.Getenv("HUDDLE_UPDATE_MAX_AGE")
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warnf("[boot] bad HUDDLE_UPDATE_MAX_AGE %q: %v", v, err)
		return 0
	}
	return d
}
