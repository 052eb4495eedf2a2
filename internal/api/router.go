package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/galerija/internal/ledger"
	"github.com/erazemk/galerija/internal/model"
)

// NewRouter creates the API router with all endpoints registered. Every
// marketplace operation is performed as the identity of the authenticated
// user. hub may be nil, in which case the event stream is not served.
func NewRouter(db *sql.DB, l *ledger.Ledger, hub *ledger.Hub, jwtSecret string) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db}
	marketHandler := &MarketHandler{DB: db, Ledger: l}
	itemsHandler := &ItemsHandler{DB: db, Ledger: l}

	authMW := AuthMiddleware(jwtSecret, db)
	requireAdmin := RequireRole(model.RoleAdmin)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Marketplace. The ledger itself decides who may change the royalty.
	mux.Handle("GET /api/market", authMW(http.HandlerFunc(marketHandler.Summary)))
	mux.Handle("PUT /api/market/royalty", authMW(http.HandlerFunc(marketHandler.UpdateRoyalty)))
	mux.Handle("GET /api/balances/{identity}", authMW(http.HandlerFunc(marketHandler.Balance)))
	mux.Handle("GET /api/events", authMW(http.HandlerFunc(marketHandler.ListEvents)))

	// Items.
	mux.Handle("GET /api/items", authMW(http.HandlerFunc(itemsHandler.List)))
	mux.Handle("GET /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Get)))
	mux.Handle("POST /api/items/{id}/buy", authMW(http.HandlerFunc(itemsHandler.Buy)))
	mux.Handle("POST /api/items/{id}/relist", authMW(http.HandlerFunc(itemsHandler.Relist)))
	mux.Handle("GET /api/items/{id}/history", authMW(http.HandlerFunc(itemsHandler.GetHistory)))
	mux.Handle("PUT /api/items/{id}/image", authMW(requireAdmin(http.HandlerFunc(itemsHandler.UploadImage))))
	mux.Handle("GET /api/items/{id}/image", authMW(http.HandlerFunc(itemsHandler.GetImage)))
	mux.Handle("GET /api/owners/{identity}/items", authMW(http.HandlerFunc(itemsHandler.ListOwned)))
	mux.Handle("GET /api/me/items", authMW(http.HandlerFunc(itemsHandler.ListMine)))

	if hub != nil {
		streamHandler := &StreamHandler{Hub: hub}
		mux.Handle("GET /api/events/stream", authMW(http.HandlerFunc(streamHandler.Events)))
	}

	return mux
}
