package router

import (
	"net/http"

	"chatdesk-backend/internal/api"
	"chatdesk-backend/internal/api/endpoints"
	"chatdesk-backend/internal/api/middleware"
)

func AgentRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		agentEndpoints := endpoints.NewAgentEndpoints(s.Services(), s.Publisher())
		auth := middleware.ValidateAgentJWT(s.Signer())

		mux.HandleFunc(prefix+"/conversations", s.MakeHTTPHandleFunc(agentEndpoints.Conversations, auth))
		mux.HandleFunc(prefix+"/conversations/{id}", s.MakeHTTPHandleFunc(agentEndpoints.Conversation, auth))
		mux.HandleFunc(prefix+"/conversations/{id}/messages", s.MakeHTTPHandleFunc(agentEndpoints.Messages, auth))
		mux.HandleFunc(prefix+"/conversations/{id}/messages/{messageId}", s.MakeHTTPHandleFunc(agentEndpoints.Message, auth))
		mux.HandleFunc(prefix+"/conversations/{id}/typing", s.MakeHTTPHandleFunc(agentEndpoints.Typing, auth))
	}
}
