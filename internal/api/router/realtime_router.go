package router

import (
	"net/http"

	"chatdesk-backend/internal/api"
	"chatdesk-backend/internal/api/endpoints"
	"chatdesk-backend/internal/api/middleware"
)

func RealtimeRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		realtimeEndpoints := endpoints.NewRealtimeEndpoints(s.Services(), s.WSHandler())
		auth := middleware.ValidateAgentJWT(s.Signer())

		mux.HandleFunc(prefix+"/widget/conversations/{id}", s.MakeHTTPHandleFunc(realtimeEndpoints.WidgetConversation))
		mux.HandleFunc(prefix+"/agent/conversations/{id}", s.MakeHTTPHandleFunc(realtimeEndpoints.AgentConversation, auth))
		mux.HandleFunc(prefix+"/agent/notifications", s.MakeHTTPHandleFunc(realtimeEndpoints.AgentNotifications, auth))
		mux.HandleFunc(prefix+"/agent/rooms", s.MakeHTTPHandleFunc(realtimeEndpoints.Rooms, auth))
	}
}
