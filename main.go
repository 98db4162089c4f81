package main

import (
	"context"
	"crypto/tls"
	"os"
	"strconv"
	"strings"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"dayplan/api"
	"dayplan/categories"
	"dayplan/docstore"
	"dayplan/identity"
	"dayplan/profile"
	"dayplan/tracker"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	usersTable := os.Getenv("USERS_TABLE")
	tasksTable := os.Getenv("TASKS_TABLE")
	categoriesTable := os.Getenv("CATEGORIES_TABLE")
	if connStr == "" || usersTable == "" || tasksTable == "" || categoriesTable == "" {
		log.Fatal("missing storage config")
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	redisOpts, err := redis.ParseURL(redisConn)
	if err != nil {
		parts := strings.Split(redisConn, ",")
		redisOpts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				redisOpts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					redisOpts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	rc := redis.NewClient(redisOpts)

	channelPrefix := os.Getenv("REDIS_CHANNEL_PREFIX")
	if channelPrefix == "" {
		channelPrefix = "dayplan"
	}
	notifier := docstore.NewNotifier(rc, channelPrefix)

	store, err := docstore.New(connStr, notifier)
	if err != nil {
		log.Fatalf("docstore: %v", err)
	}
	ctx := context.Background()
	if err := store.EnsureTables(ctx, usersTable, tasksTable, categoriesTable); err != nil {
		log.Fatalf("docstore: %v", err)
	}

	var orphans profile.OrphanSink
	if queueName := os.Getenv("CLEANUP_QUEUE"); queueName != "" {
		cleanup, err := profile.EnsureQueue(ctx, connStr, queueName)
		if err != nil {
			log.Fatalf("cleanup queue: %v", err)
		}
		orphans = cleanup
	}

	identityBase := os.Getenv("IDENTITY_BASE_URL")
	identityKey := os.Getenv("IDENTITY_API_KEY")
	if identityBase == "" || identityKey == "" {
		log.Fatal("missing identity config")
	}
	directory := identity.NewClient(identityBase, identityKey)

	logger := log.New()
	if log.GetLevel() == log.DebugLevel {
		logger.SetLevel(log.DebugLevel)
	}

	accounts := profile.NewService(directory, store.Collection(usersTable), orphans, logger)
	trackers := tracker.NewRegistry(store.Collection(tasksTable), logger)

	cats := categories.New(store.Collection(categoriesTable), logger)
	if err := cats.EnsureDefaults(ctx); err != nil {
		log.Fatalf("categories: %v", err)
	}

	testMode := os.Getenv("AUTH_TEST_MODE") == "1"
	var auth *api.Auth
	if testMode {
		auth = api.NewAuth(nil, "", "")
	} else {
		jwksURL := os.Getenv("AUTH_JWKS_URL")
		jwtAudience := os.Getenv("AUTH_AUDIENCE")
		jwtIssuer := os.Getenv("AUTH_ISSUER")
		if jwksURL == "" || jwtAudience == "" || jwtIssuer == "" {
			log.Fatal("missing auth config")
		}
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, jwtAudience, jwtIssuer)
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, accounts, trackers, cats, auth, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}
