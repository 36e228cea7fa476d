package handlers

import (
	"fmt"
	"html"
	"log"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/lee101/webfiddle/pkg/fiddle"
	"github.com/lee101/webfiddle/pkg/mirror"
)

// FaviconPath is where the site favicon asset lives; mirror requests
// for origin favicons redirect here instead of being fetched.
const FaviconPath = "/static/favicon.ico"

// Home serves GET / and /main. With a ?url= parameter it creates a
// fresh fiddle for that target and redirects into its mirror
// namespace; otherwise it renders the landing page on the default
// fiddle.
func Home(store *fiddle.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if strings.Contains(c.Get("User-Agent"), mirror.UserAgentToken) {
			return c.SendStatus(fiber.StatusNotFound)
		}

		if formURL := c.Query("url"); formURL != "" {
			target := formURL
			if unescaped, err := url.QueryUnescape(formURL); err == nil {
				target = unescaped
			}
			target = strings.TrimPrefix(target, "https://")
			target = strings.TrimPrefix(target, "http://")

			f := &fiddle.Fiddle{Title: "fiddle", StartURL: target}
			if err := store.Put(f); err != nil {
				log.Printf("WARN: could not save fiddle for %q, using default: %v", target, err)
				f = fiddle.Default()
			}
			return c.Redirect("/"+f.URLKey()+"/"+target, fiber.StatusFound)
		}

		return renderPage(c, fiddle.Default(),
			"Warp the web with WebFiddle!",
			"Edit CSS and JavaScript of any and every web page! Share the results!")
	}
}

// Warmup is the liveness no-op.
func Warmup() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	}
}

// Favicon redirects to the static favicon asset.
func Favicon() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Redirect(FaviconPath, fiber.StatusFound)
	}
}

// TrimTrailingSlash redirects /foo/ to /foo so mirror targets and
// fiddle keys have one canonical form.
func TrimTrailingSlash() fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if len(path) > 1 && strings.HasSuffix(path, "/") {
			trimmed := strings.TrimRight(path, "/")
			if qs := string(c.Request().URI().QueryString()); qs != "" {
				trimmed += "?" + qs
			}
			return c.Redirect(trimmed, fiber.StatusMovedPermanently)
		}
		return c.Next()
	}
}

// renderFiddlePage writes the editor/landing page for a fiddle. The
// full editor UI is served from static assets; this page carries the
// fiddle fields it boots from.
func renderFiddlePage(c *fiber.Ctx, f *fiddle.Fiddle) error {
	return renderPage(c, f, f.Title, f.Description)
}

func renderPage(c *fiber.Ctx, f *fiddle.Fiddle, title, description string) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	startURL := f.StartURL
	if startURL == "" {
		startURL = "www.google.com"
	}
	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<title>%s</title>
<meta name="description" content="%s">
<link rel="icon" href="%s">
</head>
<body>
<h1>%s</h1>
<p>%s</p>
<form action="/" method="get">
<input type="text" name="url" value="%s">
<button type="submit">fiddle</button>
</form>
<a href="/%s/%s">open mirror</a>
</body>
</html>
`,
		html.EscapeString(title),
		html.EscapeString(description),
		FaviconPath,
		html.EscapeString(title),
		html.EscapeString(description),
		html.EscapeString(startURL),
		f.URLKey(),
		html.EscapeString(startURL),
	)
	return c.SendString(page)
}
