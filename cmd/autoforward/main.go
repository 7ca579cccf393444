package main

import (
	"bufio"
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/TeleOle/auto-forward/internal/account"
	"github.com/TeleOle/auto-forward/internal/config"
	"github.com/TeleOle/auto-forward/internal/db"
	"github.com/TeleOle/auto-forward/internal/tdlib"
	"github.com/getsentry/sentry-go"
)

func main() {
	cfg, err := config.InitConfiguration()
	if err != nil {
		log.Fatal(err)
	}

	if cfg.SentryDSN != "" {
		err = sentry.Init(sentry.ClientOptions{
			Dsn:   cfg.SentryDSN,
			Debug: cfg.Debug,
		})
		if err != nil {
			log.Fatalf("sentry.Init: %s", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	mongoClient := db.NewClient(cfg)

	astorage := db.NewAccountsStorage(cfg, mongoClient)
	rstorage := db.NewRulesStorage(cfg, mongoClient)
	jstorage := db.NewJobsStorage(cfg, mongoClient)
	astore := account.NewAccountsStore(cfg, astorage, rstorage, jstorage)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	args := os.Args
	switch {
	case len(args) == 1:
		astore.Run(ctx)
	case len(args) == 2:
		log.Printf("Using single account %s", args[1])
		astore.RunOne(ctx, args[1])
	case len(args) == 4 && args[1] == "link":
		linkAccount(ctx, cfg, astorage, args[2], args[3])
	default:
		log.Fatalf("usage: %s [phone] | link <user-id> <phone>", args[0])
	}

	log.Printf("bye")
}

// linkAccount runs the interactive login for a new phone, feeding codes and
// passwords from stdin into the authorizer.
func linkAccount(ctx context.Context, cfg *config.Config, astorage *db.AccountsStorage, userIdStr string, phone string) {
	userId, err := strconv.ParseInt(userIdStr, 10, 64)
	if err != nil {
		log.Fatalf("invalid user id %s", userIdStr)
	}

	linker := tdlib.NewAccountLinker(slog.Default(), cfg, astorage)
	linker.LinkAccount(ctx, userId, phone)

	scanner := bufio.NewScanner(os.Stdin)
	for linker.CurrentLinkingAcc != nil {
		if tdlib.AuthorizerState != nil {
			log.Printf("authorization state: %s", tdlib.AuthorizerState.AuthorizationStateConstructor())
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case linker.AuthParams <- line:
		case <-ctx.Done():
			return
		}
	}
	log.Printf("account %s linked", phone)
}
