package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"github.com/trailhead/waivers/internal/bot"
	"github.com/trailhead/waivers/internal/gate"
	"github.com/trailhead/waivers/internal/handlers"
	"github.com/trailhead/waivers/internal/logging"
)

// Deps is everything the router wires handlers to.
type Deps struct {
	DB            *gorm.DB
	Env           *handlers.Env
	Gate          *gate.Gate
	Admin         *handlers.AdminAuth
	Dispatcher    *bot.Dispatcher // nil disables the webhook
	WebhookSecret string
}

func Router(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(d.Env.Log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handlers.Health(d.DB))
	if d.Dispatcher != nil {
		r.Post("/tg/webhook", handlers.TelegramWebhook(d.Dispatcher, d.WebhookSecret, d.Env.Log))
	}

	// Public wizard, held back until launch.
	r.Group(func(pr chi.Router) {
		pr.Use(d.Gate.Middleware)

		pr.Post("/waivers", handlers.CreateWaiver(d.Env))
		pr.Route("/waivers/{sid}", func(wr chi.Router) {
			wr.Get("/", handlers.GetWaiver(d.Env))
			wr.Patch("/", handlers.UpdateWaiver(d.Env))
			wr.Delete("/", handlers.CloseWaiver(d.Env))
			wr.Post("/continue", handlers.ContinueWaiver(d.Env))
			wr.Post("/previous", handlers.PreviousWaiver(d.Env))
			wr.Post("/submit", handlers.SubmitWaiver(d.Env))
			wr.Post("/draft", handlers.SaveDraft(d.Env))

			wr.Post("/signatures/{role}/strokes", handlers.SignatureStroke(d.Env))
			wr.Put("/signatures/{role}", handlers.SignatureUpload(d.Env))
			wr.Delete("/signatures/{role}", handlers.SignatureClear(d.Env))
		})

		pr.Get("/w/{code}", handlers.WaiverSummary(d.Env))
		pr.Get("/qr/{code}.png", handlers.QR(d.Env))
	})

	r.Route("/admin", func(ar chi.Router) {
		ar.Post("/login", d.Admin.Login)
		ar.Post("/logout", d.Admin.Logout)

		ar.Group(func(ag chi.Router) {
			ag.Use(d.Admin.RequireAdmin)
			ag.Get("/waivers", handlers.AdminWaivers(d.Env))
			ag.Get("/waivers.csv", handlers.AdminWaiversCSV(d.Env))
			ag.Get("/waivers/{code}", handlers.AdminWaiver(d.Env))
			ag.Get("/waivers/{code}/signatures/{role}.png", handlers.AdminSignatureImage(d.Env))
		})
	})

	return r
}
