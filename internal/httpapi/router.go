package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/bodega-app/bodega-api/internal/auth"
)

// Routes builds the full router under the configured API prefix.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{s.Cfg.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Route(s.Cfg.APIV1Prefix, func(r chi.Router) {
		// Unauthenticated auth flows.
		r.Post("/auth/signup", s.Signup)
		r.Post("/auth/login", s.Login)
		r.Post("/auth/refresh", s.Refresh)
		r.Post("/auth/logout", s.Logout)
		r.Post("/auth/forgot-password", s.ForgotPassword)
		r.Post("/auth/reset-password", s.ResetPassword)

		// Everything below requires a valid access token.
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.DB, s.jwtCfg()))

			r.Post("/auth/change-password", s.ChangePassword)
			r.Get("/auth/me", s.Me)

			r.Get("/warehouses", s.ListWarehouses)
			r.Post("/warehouses", s.CreateWarehouse)
			r.Post("/invites/{token}/accept", s.AcceptInvite)
			r.Get("/boxes/by-qr/{qrToken}", s.BoxByQR)

			r.Post("/sync/push", s.SyncPush)
			r.Get("/sync/pull", s.SyncPull)
			r.Post("/sync/resolve", s.SyncResolve)

			// Settings address the warehouse by query param.
			r.Get("/settings/smtp", s.GetSMTPSettings)
			r.Put("/settings/smtp", s.UpdateSMTPSettings)
			r.Post("/settings/smtp/test", s.TestSMTPSettings)
			r.Get("/settings/llm", s.GetLLMSettings)
			r.Put("/settings/llm", s.UpdateLLMSettings)
			r.Post("/settings/llm/reprocess-item/{itemID}", s.ReprocessItem)

			r.Route("/warehouses/{warehouseID}", func(r chi.Router) {
				r.Use(s.requireMembership)

				r.Get("/", s.GetWarehouse)
				r.Get("/members", s.ListMembers)
				r.Post("/invites", s.CreateInvite)
				r.Get("/activity", s.ListActivity)

				r.Get("/boxes/tree", s.BoxTree)
				r.Post("/boxes", s.CreateBox)
				r.Get("/boxes/{boxID}", s.GetBox)
				r.Patch("/boxes/{boxID}", s.UpdateBox)
				r.Delete("/boxes/{boxID}", s.DeleteBox)
				r.Get("/boxes/{boxID}/items", s.BoxItems)
				r.Post("/boxes/{boxID}/move", s.MoveBox)
				r.Post("/boxes/{boxID}/restore", s.RestoreBox)

				r.Get("/items", s.ListItems)
				r.Post("/items", s.CreateItem)
				r.Post("/items/batch", s.BatchItems)
				r.Get("/items/{itemID}", s.GetItem)
				r.Patch("/items/{itemID}", s.UpdateItem)
				r.Delete("/items/{itemID}", s.DeleteItem)
				r.Post("/items/{itemID}/restore", s.RestoreItem)
				r.Post("/items/{itemID}/favorite", s.FavoriteItem)
				r.Post("/items/{itemID}/stock/adjust", s.AdjustStock)

				r.Get("/tags", s.ListTags)
				r.Get("/tags/cloud", s.TagCloud)

				r.Get("/export", s.ExportWarehouse)
				r.Post("/import", s.ImportWarehouse)
			})
		})
	})

	log.Info().Str("prefix", s.Cfg.APIV1Prefix).Msg("HTTP routes registered")
	return r
}

func (s *Server) jwtCfg() auth.JWTCfg {
	return auth.JWTCfg{
		Secret:             s.Cfg.JWTSecret,
		Algorithm:          s.Cfg.JWTAlgorithm,
		AccessTokenMinutes: s.Cfg.AccessTokenMinutes,
		RefreshTokenDays:   s.Cfg.RefreshTokenDays,
	}
}

// requireMembership gates warehouse-scoped routes: the authenticated user
// must hold a membership row for the path's warehouse.
func (s *Server) requireMembership(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		warehouseID := chi.URLParam(r, "warehouseID")
		ok, err := auth.IsMember(r.Context(), s.DB, auth.UserID(r.Context()), warehouseID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if !ok {
			writeError(w, r, 403, "No access to warehouse")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireMembershipID is the inline variant for endpoints that carry the
// warehouse id in the body or query instead of the path.
func (s *Server) requireMembershipID(w http.ResponseWriter, r *http.Request, warehouseID string) bool {
	ok, err := auth.IsMember(r.Context(), s.DB, auth.UserID(r.Context()), warehouseID)
	if err != nil {
		writeServiceError(w, r, err)
		return false
	}
	if !ok {
		writeError(w, r, 403, "No access to warehouse")
		return false
	}
	return true
}
