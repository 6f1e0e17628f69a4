package api

import "github.com/gofiber/fiber/v2"

// Route is implemented by every feature API so the main app can
// collect them in one fx group and register them in a single pass.
type Route interface {
	Setup(app *fiber.App)
}
