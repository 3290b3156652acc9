package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hbmusic/songd/internal/base"
	"github.com/hbmusic/songd/internal/cache"
	"github.com/hbmusic/songd/internal/favorites"
	"github.com/hbmusic/songd/internal/music"
	"github.com/hbmusic/songd/internal/resolve"
	"github.com/hbmusic/songd/internal/search"
)

func main() {
	base.InitConfig()
	base.InitLog(base.Config.LogLevel, base.Config.LogPath)
	log := base.Log()

	music.TaggingEnabled = base.Config.UseIDPrefix
	if art := base.Config.DefaultAlbumArt; art != "" {
		music.DefaultAlbumArt = art
	}

	timeout := time.Duration(base.Config.RequestTimeout) * time.Second
	netease := music.NewNeteaseClient(base.Config.MainAPI, timeout)
	kuwo := music.NewKuwoClient(base.Config.FallbackAPI, timeout)

	var rdb *redis.Client
	if base.Config.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     base.Config.RedisAddr,
			Password: base.Config.RedisPassword,
		})
	}
	store := cache.NewStore(rdb)

	var favs favorites.Store
	if dsn := base.Config.PostgresDSN; dsn != "" {
		dbs, err := favorites.OpenDB(dsn)
		if err != nil {
			log.Fatal("favorites: postgres unavailable", zap.Error(err))
		}
		favs = dbs
	} else {
		log.Warn("favorites: no postgres dsn configured, using in-memory store")
		favs = favorites.NewMemStore()
	}

	engine := resolve.NewEngine(netease, kuwo, store, favs)
	agg := search.NewAggregator(netease, kuwo, store)
	catalog := search.NewCatalog(netease, kuwo, store)

	hub := newHub()
	if rdb != nil {
		// Clear publishes to redis; the relay echoes it back to our own
		// websocket clients along with notices from sibling processes.
		go relayInvalidations(context.Background(), rdb, hub)
	} else {
		store.OnInvalidate(hub.BroadcastInvalidate)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go engine.Run(ctx)
	go func() {
		ticker := time.NewTicker(6 * time.Hour)
		defer ticker.Stop()
		for {
			if err := engine.RefreshFavorites(ctx); err != nil {
				log.Warn("refresh: favorites sweep failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	s := &server{
		engine:  engine,
		agg:     agg,
		catalog: catalog,
		store:   store,
		favs:    favs,
		main:    netease,
		kuwo:    kuwo,
	}

	gin.SetMode(gin.ReleaseMode)
	g := gin.Default()
	g.Use(Cors())

	g.GET("/health", s.health)
	g.GET("/events", hub.serve)

	api := g.Group("/api")
	api.GET("/search", s.search)
	api.GET("/search/more", s.searchMore)
	api.GET("/resolve", s.resolveTrack)
	api.POST("/resolve", s.resolveTrack)
	api.GET("/lyric", s.lyric)
	api.GET("/detail", s.detail)
	api.GET("/initial", s.initialSongs)
	api.GET("/playlist", s.playlist)
	api.POST("/cache/clear", s.clearCache)
	api.GET("/favorites", s.listFavorites)
	api.POST("/favorites", s.putFavorite)

	srv := &http.Server{Addr: base.Config.Addr, Handler: g}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("listening", zap.String("addr", base.Config.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server exited", zap.Error(err))
	}
}

func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "token,content-type,accesstoken")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
