package router

import (
	"net/http"

	"chatdesk-backend/internal/api"
	"chatdesk-backend/internal/api/endpoints"
)

// WidgetRoutes registers the public widget API. Callers authenticate with
// the session token issued by init.
func WidgetRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		widgetEndpoints := endpoints.NewWidgetEndpoints(s.Services(), s.Publisher())

		mux.HandleFunc(prefix+"/init", s.MakeHTTPHandleFunc(widgetEndpoints.Init))
		mux.HandleFunc(prefix+"/departments", s.MakeHTTPHandleFunc(widgetEndpoints.Departments))
		mux.HandleFunc(prefix+"/conversations", s.MakeHTTPHandleFunc(widgetEndpoints.Conversations))
		mux.HandleFunc(prefix+"/conversations/{id}", s.MakeHTTPHandleFunc(widgetEndpoints.Conversation))
		mux.HandleFunc(prefix+"/conversations/{id}/messages", s.MakeHTTPHandleFunc(widgetEndpoints.Messages))
		mux.HandleFunc(prefix+"/conversations/{id}/typing", s.MakeHTTPHandleFunc(widgetEndpoints.Typing))
	}
}
