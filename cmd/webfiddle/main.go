package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/lee101/webfiddle/handlers"
	"github.com/lee101/webfiddle/pkg/blacklist"
	"github.com/lee101/webfiddle/pkg/cache"
	"github.com/lee101/webfiddle/pkg/fiddle"
	"github.com/lee101/webfiddle/pkg/mirror"
)

// Auto-load .env from the working directory if present.
import _ "github.com/joho/godotenv/autoload"

func main() {
	parser := argparse.NewParser("webfiddle", "Content-rewriting mirror proxy with per-fiddle script/style overlays")
	port := parser.String("p", "port", &argparse.Options{Help: "Port to listen on", Default: "8080"})
	dataDir := parser.String("d", "data", &argparse.Options{Help: "Directory for cache and fiddle databases", Default: "./data"})
	blacklistPath := parser.String("b", "blacklist", &argparse.Options{Help: "Optional yaml file with extra blacklisted targets", Default: ""})
	ttlHours := parser.Int("t", "cache-ttl", &argparse.Options{Help: "Cache TTL in hours", Default: int(cache.DefaultTTL.Hours())})
	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	denied, err := blacklist.Load(*blacklistPath)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	contentStore, err := cache.Open(filepath.Join(*dataDir, "cache"))
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	defer contentStore.Close()

	fiddleStore, err := fiddle.Open(filepath.Join(*dataDir, "fiddles"))
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	defer fiddleStore.Close()

	ttl := time.Duration(*ttlHours) * time.Hour
	deps := handlers.Deps{
		Mirror:  mirror.NewService(contentStore, mirror.NewFetcher(), ttl),
		Fiddles: fiddleStore,
		Denied:  denied,
		TTL:     ttl,
	}

	app := fiber.New(fiber.Config{
		// Never reflect internal error detail to clients.
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
				return c.SendStatus(fe.Code)
			}
			log.Printf("ERROR: %s %s: %v", c.Method(), c.Path(), err)
			return c.Status(fiber.StatusInternalServerError).SendString("internal error")
		},
	})
	app.Use(recover.New())
	handlers.Register(app, deps)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Println("INFO: shutting down")
		_ = app.Shutdown()
	}()

	log.Printf("INFO: webfiddle listening on :%s", *port)
	if err := app.Listen(":" + *port); err != nil {
		log.Fatalf("ERROR: server error: %v", err)
	}
}
