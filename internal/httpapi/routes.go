package httpapi

import (
	"booking-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Register mounts the Bolna routes. The webhook stays public; everything else runs behind authMW
// and the organization check.
func Register(r gin.IRouter, h Handlers, authMW gin.HandlerFunc) {
	r.POST("/bolna/webhook", h.Webhook)

	api := r.Group("/bolna")
	api.Use(authMW, rbac.RequireOrganization())
	{
		managers := rbac.RequireAnyRole(rbac.Managers...)
		members := rbac.RequireAnyRole(rbac.Members...)
		operators := rbac.RequireAnyRole(rbac.Operators...)

		api.POST("/api-key", managers, h.SaveAPIKey)
		api.GET("/api-key/status", members, h.APIKeyStatus)
		api.DELETE("/api-key", managers, h.ClearAPIKey)

		api.POST("/agents", managers, h.CreateAgent)
		api.GET("/agents", members, h.ListAgents)
		api.GET("/agents/:id", members, h.GetAgent)
		api.PUT("/agents/:id", managers, h.UpdateAgent)
		api.DELETE("/agents/:id", managers, h.DeleteAgent)

		api.POST("/calls", operators, h.PlaceCall)
		api.GET("/calls", members, h.ListCalls)
		api.GET("/calls/:id", members, h.GetCall)
	}
}
