package main

import (
	"net/http"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"
)

func (app *application) routes() http.Handler {
	standardMiddleware := alice.New(app.recoverPanic, app.logRequest, secureHeaders, makeResponseJSON)
	authMiddleware := standardMiddleware.Append(app.authenticate)

	mux := pat.New()

	// Subscriptions
	mux.Post("/subscriptions/register", authMiddleware.ThenFunc(app.subscriptionHandler.RegisterSubscription))
	mux.Post("/subscriptions/transfer", authMiddleware.ThenFunc(app.subscriptionHandler.TransferSubscription))
	mux.Get("/subscriptions", authMiddleware.ThenFunc(app.subscriptionHandler.GetSubscriptionStatus))

	// Device tokens for push fan-out
	mux.Put("/instance", authMiddleware.ThenFunc(app.instanceHandler.RegisterInstance))
	mux.Del("/instance/:token", authMiddleware.ThenFunc(app.instanceHandler.UnregisterInstance))

	// Pub/Sub push delivery of real-time developer notifications
	mux.Post("/rtdn", standardMiddleware.ThenFunc(app.rtdnHandler.HandleNotification))

	return mux
}
