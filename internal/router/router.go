package router

import (
	"net/http"

	"github.com/pixelmint/backend/internal/auth"
	"github.com/pixelmint/backend/internal/billing"
	"github.com/pixelmint/backend/internal/dashboard"
	"github.com/pixelmint/backend/internal/generate"
)

// Middleware is a standard wrapping middleware.
type Middleware func(http.Handler) http.Handler

// Deps carries everything the router mounts.
type Deps struct {
	Auth    *auth.Handler
	Tools   *generate.Handler
	Dash    *dashboard.Handler
	Billing *billing.WebhookHandler

	// SessionAuth guards account, credits, asset and tool routes.
	SessionAuth Middleware
	// OriginCheck and SpendLimit apply to tool routes only.
	OriginCheck Middleware
	SpendLimit  Middleware
}

// New returns the API handler mounted under /api/v1.
func New(d Deps) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	// Public.
	mux.HandleFunc("POST "+base+"/auth/signup", d.Auth.Signup)
	mux.HandleFunc("POST "+base+"/auth/login", d.Auth.Login)
	mux.HandleFunc("POST "+base+"/billing/webhook", d.Billing.HandleWebhook)
	mux.HandleFunc("GET "+base+"/assets/download", d.Dash.Download)

	// Session-authed reads.
	authed := func(h http.HandlerFunc) http.Handler {
		return d.SessionAuth(h)
	}
	mux.Handle("GET "+base+"/account/me", authed(d.Dash.GetMe))
	mux.Handle("PATCH "+base+"/account/settings", authed(d.Dash.UpdateSettings))
	mux.Handle("GET "+base+"/credits", authed(d.Dash.GetCredits))
	mux.Handle("GET "+base+"/credits/transactions", authed(d.Dash.ListTransactions))
	mux.Handle("GET "+base+"/assets", authed(d.Dash.ListAssets))
	mux.Handle("GET "+base+"/assets/{id}", authed(d.Dash.GetAsset))
	mux.Handle("DELETE "+base+"/assets/{id}", authed(d.Dash.DeleteAsset))

	// Tool routes: session auth, then same-origin check, then the
	// daily spend cap.
	tool := func(h http.HandlerFunc) http.Handler {
		return d.SessionAuth(d.OriginCheck(d.SpendLimit(h)))
	}
	mux.Handle("POST "+base+"/tools/background/generate", tool(d.Tools.GenerateBackground))
	mux.Handle("POST "+base+"/tools/sticker/generate", tool(d.Tools.GenerateSticker))

	return mux
}
