package handlers

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lee101/webfiddle/pkg/blacklist"
	"github.com/lee101/webfiddle/pkg/fiddle"
	"github.com/lee101/webfiddle/pkg/mirror"
	"github.com/lee101/webfiddle/pkg/overlay"
)

// Deps wires the mirror pipeline, fiddle store, and denylist into the
// HTTP handlers.
type Deps struct {
	Mirror  *mirror.Service
	Fiddles *fiddle.Store
	Denied  *blacklist.List
	TTL     time.Duration
}

// MirrorSite serves GET /:fiddle/*, the proxy pipeline. The fiddle
// segment must be a slug-token name; the wildcard is the origin
// domain followed by its path.
func MirrorSite(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Never mirror our own fetches.
		if strings.Contains(c.Get("User-Agent"), mirror.UserAgentToken) {
			log.Printf("WARN: ignoring recursive request from %s", c.IP())
			return c.SendStatus(fiber.StatusNotFound)
		}

		target, err := targetFromParams(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("invalid mirror target")
		}
		if target == "" {
			// No origin in the path; fall through to the fiddle page
			// routes.
			return c.Next()
		}

		fiddleName := c.Params("fiddle")
		if !strings.Contains(fiddleName, "-") {
			return c.Status(fiber.StatusBadRequest).SendString("invalid fiddle name")
		}
		if strings.HasSuffix(target, "favicon.ico") {
			return c.Redirect("/favicon.ico", fiber.StatusFound)
		}

		if deps.Denied.Contains(target) {
			return c.Status(fiber.StatusForbidden).SendString("this site cannot be mirrored")
		}

		if os.Getenv("LOG_URLS") == "true" {
			log.Printf("INFO: mirror %s/%s ua=%q referer=%q", fiddleName, target, c.Get("User-Agent"), c.Get("Referer"))
		}

		content, err := deps.Mirror.Mirror(fiddleName, target)
		if err != nil {
			log.Printf("WARN: mirror failed for %s: %v", target, err)
			return c.SendStatus(fiber.StatusNotFound)
		}

		for key, value := range content.Headers {
			c.Set(key, value)
		}
		c.Set("cache-control", fmt.Sprintf("max-age=%d", int(deps.TTL.Seconds())))

		nonce := overlay.Nonce()
		c.Set("content-security-policy", overlay.CSP(nonce))

		body := content.Data
		if content.IsHTML() {
			body = overlay.Inject(body, lookupFiddle(deps.Fiddles, fiddleName), "/"+fiddleName+"/", content.Host, nonce)
		}
		return c.Status(content.Status).Send(body)
	}
}

// targetFromParams rebuilds the origin target (domain plus path and
// query) from the wildcard segment.
func targetFromParams(c *fiber.Ctx) (string, error) {
	target := strings.TrimPrefix(c.Params("*"), "/")
	if strings.Contains(target, "://") {
		// Tolerate pasted absolute URLs: /fiddle/http://host/x
		parts := strings.SplitN(target, "://", 2)
		if parts[1] == "" {
			return "", errors.New("empty mirror target")
		}
		target = parts[1]
	}
	if qs := string(c.Request().URI().QueryString()); qs != "" {
		target += "?" + qs
	}
	return target, nil
}

// lookupFiddle resolves the overlay for a fiddle name. Missing
// fiddles still get the ambient injection, just no custom
// script/style, except the default demo fiddle which always resolves.
func lookupFiddle(store *fiddle.Store, name string) *fiddle.Fiddle {
	f, err := store.ByURLKey(name)
	if err == nil {
		return f
	}
	if !errors.Is(err, fiddle.ErrNotFound) {
		log.Printf("WARN: fiddle lookup failed for %s: %v", name, err)
	}
	if def := fiddle.Default(); name == def.URLKey() {
		return def
	}
	return nil
}
