package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/telemed/internal/config"
)

type Controllers struct {
	Users         *UserController
	Queue         *QueueController
	Consultations *ConsultationController
	Relay         *RelayController
}

func SetupRouter(cfg config.HTTPConfig, c Controllers) *gin.Engine {
	router := gin.Default()
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	router.Use(cors.New(corsConfig))
	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	if c.Users != nil {
		users := api.Group("/users")
		users.POST("", c.Users.CreateUser)
		users.GET("/:userID", c.Users.GetUser)
		users.PUT("/:userID/status", c.Users.SetStatus)
		api.GET("/doctors/available", c.Users.AvailableDoctors)
	}

	if c.Queue != nil {
		queue := api.Group("/queue")
		queue.POST("", c.Queue.Join)
		queue.GET("", c.Queue.List)
		queue.GET("/next", c.Queue.Next)
		queue.GET("/:patientID", c.Queue.Position)
		queue.DELETE("/:patientID", c.Queue.Leave)
	}

	if c.Consultations != nil {
		consultations := api.Group("/consultations")
		consultations.POST("/accept", c.Consultations.Accept)
		consultations.POST("/reject", c.Consultations.Reject)
		consultations.POST("/:recordID/finish", c.Consultations.Finish)
		consultations.GET("/:recordID", c.Consultations.Get)
	}

	if c.Relay != nil {
		api.GET("/ws", c.Relay.Connect)
	}

	return router
}
