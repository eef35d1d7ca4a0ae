package handlers

import (
	"net/http"
	"time"

	"auction-marketplace/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// NewRouter builds the REST API of the auction service.
func NewRouter(auctions *AuctionHandler, users *UserHandler, auth Authenticator, log logger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
		},
		MaxAge: 86400,
	}))
	e.Use(requestLogger(log))

	api := e.Group("/api/v1")
	api.POST("/users", users.Register)
	api.POST("/sessions", users.Login)
	api.GET("/categories", auctions.ListCategories)
	api.GET("/auctions", auctions.ListAuctions)
	api.GET("/auctions/:id", auctions.GetAuction)
	api.GET("/auctions/:id/bids", auctions.ListBids)

	authed := api.Group("", RequireAuth(auth))
	authed.POST("/auctions", auctions.CreateAuction)
	authed.POST("/auctions/:id/bids", auctions.PlaceBid)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   "auction-service",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	return e
}

func requestLogger(log logger.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogLatency:   true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []interface{}{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
				"latency", v.Latency.String(),
			}
			if v.Error != nil {
				log.Error("Request failed", append(fields, "error", v.Error)...)
				return nil
			}
			log.Info("Request handled", fields...)
			return nil
		},
	})
}
