package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/accordlabs/accord/backend/internal/conductor"
	"github.com/accordlabs/accord/backend/internal/events"
	issueHandler "github.com/accordlabs/accord/backend/internal/handler/issue"
	liveHandler "github.com/accordlabs/accord/backend/internal/handler/live"
	sessionHandler "github.com/accordlabs/accord/backend/internal/handler/session"
	streamHandler "github.com/accordlabs/accord/backend/internal/handler/stream"
	middlewarePkg "github.com/accordlabs/accord/backend/internal/middleware"
	"github.com/accordlabs/accord/backend/internal/service/analyzer"
	"github.com/accordlabs/accord/backend/internal/service/mediation"
	"github.com/accordlabs/accord/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(mediationSvc *mediation.Service, conductorSvc *conductor.Service, analyzerSvc *analyzer.Service, bus *events.Bus) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	sessions := sessionHandler.New(mediationSvc, conductorSvc, analyzerSvc)
	issues := issueHandler.New(mediationSvc)

	r.Route("/api", func(api chi.Router) {
		sessions.RegisterRoutes(api)
		issues.RegisterRoutes(api)

		if bus != nil {
			liveHandler.New(mediationSvc, bus).RegisterRoutes(api)
			streamHandler.New(mediationSvc, bus).RegisterRoutes(api)
		}

		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return r
}
