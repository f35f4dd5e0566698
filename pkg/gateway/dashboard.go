package gateway

import (
	_ "embed"
	"net/http"

	"github.com/labstack/echo/v4"
)

//go:embed assets/dashboard.html
var dashboardHTML string

func (w *Web) handleDashboard(c echo.Context) error {
	return c.HTML(http.StatusOK, dashboardHTML)
}
