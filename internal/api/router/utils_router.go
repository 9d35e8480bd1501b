package router

import (
	"net/http"

	"github.com/omnichat/webchat/internal/api"
	"github.com/omnichat/webchat/internal/api/endpoints"
)

func UtilsRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		utilsEndpoints := endpoints.NewUtilsEndpoints()
		mux.HandleFunc(prefix+"/health", s.MakeHTTPHandleFunc(utilsEndpoints.Health))
	}
}

// All mounts every route the development server exposes.
func All(prefix string) []api.RouteRegistrar {
	return []api.RouteRegistrar{
		UtilsRoutes(prefix),
		WidgetRoutes(prefix),
		ConversationRoutes(prefix),
		WebsocketRoutes(prefix),
	}
}
