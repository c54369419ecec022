package configuration

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/form3tech-oss/pact-mock/internal/app/pactmock"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
)

var servers sync.Map
var hostPaths sync.Map

// StartServer serves a mock instance at the given URL. One HTTP server
// runs per host, with its own interaction registry; further URLs on the
// same host mount that instance under additional path prefixes through
// rewrite rules. Listening happens in the background — startup failures
// are logged, not returned.
func StartServer(url *url.URL, config *pactmock.Config) error {
	rootServer, loaded := loadServer(url.Host)
	if !loaded {
		server, err := newServer(url, config)
		if err != nil {
			return err
		}
		servers.Store(url.Host, server)
		go func() {
			var err error
			if config.TLSCertFile != "" && config.TLSKeyFile != "" {
				err = server.ListenAndServeTLS(config.TLSCertFile, config.TLSKeyFile)
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && err != http.ErrServerClosed {
				log.Error(err)
			}
		}()
		return nil
	}

	if strings.TrimLeft(url.Path, "/") == "" {
		// don't allow two servers on the same address, with empty path
		return fmt.Errorf("mock server already running at %s", url.String())
	}

	// This is a new path for an existing server, so add another rewrite rule
	e := rootServer.Handler.(*echo.Echo)

	// don't allow two servers on the same address, with same path
	if _, found := hostPaths.Load(url.Path); found {
		return fmt.Errorf("mock server already running at %s", url.String())
	}
	hostPaths.Store(url.Path, true)
	addRewrite(e, url.Path)

	return nil
}

func loadServer(addr string) (*http.Server, bool) {
	server, loaded := servers.Load(addr)
	if !loaded {
		return nil, false
	}
	return server.(*http.Server), loaded
}

// ShutdownAllServers gracefully stops every running mock server and
// forgets all path mounts.
func ShutdownAllServers(ctx context.Context) {
	servers.Range(func(key, _ interface{}) bool {
		server, loaded := servers.LoadAndDelete(key)
		if loaded {
			if err := server.(*http.Server).Shutdown(ctx); err != nil {
				log.Error(err)
			}
		}
		return true
	})

	hostPaths.Range(func(key, _ interface{}) bool {
		hostPaths.Delete(key)
		return true
	})
}

func newServer(url *url.URL, config *pactmock.Config) (*http.Server, error) {
	e := echo.New()
	e.HideBanner = true

	if err := pactmock.SetupRoutes(e, config); err != nil {
		return nil, err
	}

	s := http.Server{
		Addr:    url.Host,
		Handler: e,
	}

	if config.TLSCAFile != "" {
		if config.TLSCertFile == "" || config.TLSKeyFile == "" {
			log.Fatalf("cannot run in mTLS mode without TLS cert and key")
		}

		caCertFile, err := os.ReadFile(config.TLSCAFile)
		if err != nil {
			log.Fatalf("error reading CA certificate: %v", err)
		}
		certPool := x509.NewCertPool()
		certPool.AppendCertsFromPEM(caCertFile)
		s.TLSConfig = &tls.Config{
			ClientAuth: tls.RequireAndVerifyClientCert,
			ClientCAs:  certPool,
			MinVersion: tls.VersionTLS12,
		}
	}

	if strings.TrimLeft(url.Path, "/") != "" {
		hostPaths.Store(url.Path, true)
		addRewrite(e, url.Path)
	}

	return &s, nil
}

func addRewrite(e *echo.Echo, path string) {
	e.Pre(middleware.Rewrite(map[string]string{
		path + "/*": "/$1",
	}))
}
