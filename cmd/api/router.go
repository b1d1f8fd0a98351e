package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ln-donations/internal/handlers"
	"ln-donations/internal/metrics"
	"ln-donations/internal/middleware"
	"ln-donations/internal/ratelimit"
)

type routerDeps struct {
	log         *logrus.Entry
	corsOrigins string
	jwtSecret   string
	limiter     ratelimit.Limiter

	donations *handlers.DonationHandler
	donors    *handlers.DonorHandler
	admin     *handlers.AdminHandler
	auth      *handlers.AuthHandler
	merchants *handlers.MerchantHandler
	feed      *handlers.WebSocketHandler
}

func corsConfig(origins string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Retry-After", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}

	var allowed []string
	for _, origin := range strings.Split(origins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed = append(allowed, origin)
		}
	}
	if len(allowed) == 0 || (len(allowed) == 1 && allowed[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowed
	}
	return cfg
}

func newRouter(d routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestLog(d.log),
		metrics.Middleware(),
		cors.New(corsConfig(d.corsOrigins)),
	)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
	r.GET("/metrics", metrics.Handler())

	// Every API route gets its own general budget per client, so status
	// polling cannot starve the receipt call that follows settlement.
	api := r.Group("/api")
	api.Use(middleware.RateLimit(d.limiter, ratelimit.General, "", d.log))
	{
		donations := api.Group("/donations")
		{
			donations.POST("/create",
				middleware.RateLimit(d.limiter, ratelimit.Moderate, "donations/create", d.log),
				d.donations.CreateDonation)
			donations.GET("/:invoiceId/payment-methods", d.donations.GetPaymentMethods)
			donations.GET("/status", d.donations.GetStatus)
			donations.POST("/send-receipt",
				middleware.RateLimit(d.limiter, ratelimit.Strict, "donations/send-receipt", d.log),
				d.donations.SendReceipt)
		}

		api.GET("/donors", d.donors.GetDonors)

		api.GET("/merchants", d.merchants.ListMerchants)
		api.GET("/merchants/:slug", d.merchants.GetMerchant)

		api.POST("/admin/login",
			middleware.RateLimit(d.limiter, ratelimit.Strict, "admin/login", d.log),
			d.auth.Login)

		// Protected Endpoint
		admin := api.Group("/admin")
		admin.Use(middleware.AdminAuth(d.jwtSecret, d.log))
		{
			admin.GET("/donors/:invoiceId", d.admin.GetDonor)
		}
	}

	r.GET("/ws/donations", d.feed.ServeFeed)

	return r
}
