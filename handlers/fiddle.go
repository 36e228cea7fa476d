package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/lee101/webfiddle/pkg/fiddle"
)

// CreateFiddle serves GET /createfiddle, saving a fiddle from query
// parameters and answering with a bare "success" body.
func CreateFiddle(store *fiddle.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := &fiddle.Fiddle{
			ID:          c.Query("id"),
			Title:       c.Query("title"),
			Description: c.Query("description"),
			StartURL:    c.Query("start_url"),
			Script:      c.Query("script"),
			Style:       c.Query("style"),
		}
		f.ScriptLanguage = fiddle.ScriptLanguages[c.Query("script_language")]
		if f.ScriptLanguage == "" {
			f.ScriptLanguage = "js"
		}
		f.StyleLanguage = fiddle.StyleLanguages[c.Query("style_language")]
		if f.StyleLanguage == "" {
			f.StyleLanguage = "css"
		}

		if err := store.Put(f); err != nil {
			log.Printf("ERROR: could not save fiddle %q: %v", f.ID, err)
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendString("success")
	}
}

// GetFiddle serves GET /:fiddlekey, the fiddle landing page.
func GetFiddle(store *fiddle.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Params("fiddlekey")
		f, err := store.ByURLKey(key)
		if errors.Is(err, fiddle.ErrNotFound) {
			if def := fiddle.Default(); key == def.URLKey() {
				f = def
			} else {
				return c.SendStatus(fiber.StatusNotFound)
			}
		} else if err != nil {
			log.Printf("ERROR: fiddle lookup failed for %s: %v", key, err)
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return renderFiddlePage(c, f)
	}
}
