package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// Register wires all routes onto the app. Order matters: fixed paths
// first, then the mirror wildcard, then the fiddle page catch-all the
// wildcard falls through to when no origin follows the fiddle name.
func Register(app *fiber.App, deps Deps) {
	app.Use(TrimTrailingSlash())

	app.Get("/", Home(deps.Fiddles))
	app.Get("/main", Home(deps.Fiddles))
	app.Get("/warmup", Warmup())
	app.Get("/favicon.ico", Favicon())
	app.Get("/createfiddle", CreateFiddle(deps.Fiddles))

	app.Get("/:fiddle/*", MirrorSite(deps))
	app.Get("/:fiddlekey", GetFiddle(deps.Fiddles))
}
