package router

import (
	"net/http"
	"strings"

	"github.com/omnichat/webchat/internal/api"
	"github.com/omnichat/webchat/internal/api/endpoints"
)

func ConversationRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		conversationsPath := strings.TrimRight(prefix, "/") + "/chat/conversations/"
		convEndpoints := endpoints.NewConversationEndpoints(s.Conversations(), s.Publisher(), s.Logger(), conversationsPath)

		mux.HandleFunc(conversationsPath, s.MakeHTTPHandleFunc(convEndpoints.Conversation))
	}
}
