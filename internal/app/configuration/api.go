package configuration

import (
	"fmt"
	"net/http"

	"github.com/form3tech-oss/pact-mock/internal/app/httpresponse"
	"github.com/form3tech-oss/pact-mock/internal/app/pactmock"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// ServeAdminAPI starts the admin plane on the given port: endpoints to
// create mock servers from a JSON configuration and to shut them all
// down. Each created server carries its own interaction registry.
func ServeAdminAPI(port int) *echo.Echo {
	adminServer := echo.New()
	adminServer.HideBanner = true

	adminServer.POST("/servers", postServersHandler)
	adminServer.DELETE("/servers", deleteServersHandler)

	go func() {
		address := fmt.Sprintf(":%d", port)
		if err := adminServer.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	return adminServer
}

func postServersHandler(c echo.Context) error {
	config := pactmock.Config{}
	if err := c.Bind(&config); err != nil {
		return c.JSON(
			http.StatusBadRequest,
			httpresponse.Errorf("unable to parse server configuration. %s", err.Error()),
		)
	}

	log.Infof("setting up mock server at %s", config.ServerAddress.String())

	if err := ConfigureServer(config); err != nil {
		return c.JSON(
			http.StatusInternalServerError,
			httpresponse.Errorf("unable to create mock server from configuration. %s", err.Error()),
		)
	}

	return c.NoContent(http.StatusNoContent)
}

func deleteServersHandler(c echo.Context) error {
	log.Info("shutting down all mock servers")
	ShutdownAllServers(c.Request().Context())
	return c.NoContent(http.StatusNoContent)
}
