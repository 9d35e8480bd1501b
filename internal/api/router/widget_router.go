package router

import (
	"net/http"
	"strings"

	"github.com/omnichat/webchat/internal/api"
	"github.com/omnichat/webchat/internal/api/endpoints"
)

func WidgetRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		base := strings.TrimRight(prefix, "/")
		widgetEndpoints := endpoints.NewWidgetEndpoints(s.Conversations(), s.Publisher(), s.Logger())

		mux.HandleFunc(base+"/web-chat/start", s.MakeHTTPHandleFunc(widgetEndpoints.Start))
		mux.HandleFunc(base+"/web-chat/messages", s.MakeHTTPHandleFunc(widgetEndpoints.Messages))
		mux.HandleFunc(base+"/web-chat/profile", s.MakeHTTPHandleFunc(widgetEndpoints.Profile))
	}
}

// WebsocketRoutes mounts the visitor push channel and the room listing.
func WebsocketRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		handler := s.Handler()
		if handler == nil {
			return
		}
		base := strings.TrimRight(prefix, "/")

		mux.HandleFunc(base+"/web-chat", s.MakeStreamHandleFunc(handler.ServeVisitor))
		mux.HandleFunc(base+"/ws/rooms", s.MakeStreamHandleFunc(handler.GetRooms))
	}
}
