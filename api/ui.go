package api

import (
	"embed"

	"github.com/labstack/echo/v4"
)

//go:embed static
var staticFiles embed.FS

func registerUI(e *echo.Echo) {
	assets := echo.MustSubFS(staticFiles, "static")
	e.FileFS("/", "index.html", assets)
	e.StaticFS("/static", assets)
}
