package api

import (
	"errors"
	"html/template"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/daewon/plantops/internal/apperr"
	"github.com/daewon/plantops/internal/auth"
)

// Page is one client-side route served with the application shell.
type Page struct {
	Path  string
	Title string
}

// Pages is the route table of the web front end. Every page requires a
// session; unknown paths redirect to "/".
var Pages = []Page{
	{"/", "Home"},
	{"/production-history", "Production history"},
	{"/inventory", "Inventory"},
	{"/bulk-boms", "Bulk BOMs"},
	{"/bom-manage", "BOM management"},
	{"/bulk-items", "Bulk items"},
	{"/item-manage", "Item management"},
	{"/master-manage", "Master management"},
	{"/produce-foaming", "Foaming production"},
	{"/produce-frp", "FRP production"},
	{"/produce-finishing", "Finishing production"},
	{"/produce-packaging", "Packaging production"},
	{"/schema-inspector", "Schema inspector"},
	{"/schema-editor", "Schema editor"},
}

var shellTmpl = template.Must(template.New("shell").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>{{.Title}} · plantops</title></head>
<body>
<nav>{{range .Pages}}<a href="{{.Path}}">{{.Title}}</a> {{end}}</nav>
<main id="app" data-route="{{.Path}}"></main>
{{if .AuthEnabled}}<form method="post" action="/logout"><button>Sign out</button></form>{{end}}
</body></html>
`))

var loginTmpl = template.Must(template.New("login").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Sign in · plantops</title></head>
<body>
{{if .Failed}}<p role="alert">Sign-in failed.</p>{{end}}
<form method="post" action="/login">
<input type="hidden" name="redirect" value="{{.Redirect}}">
<label>ID <input name="identifier" autocomplete="username"></label>
<label>Password <input name="secret" type="password" autocomplete="current-password"></label>
<button>Sign in</button>
</form>
</body></html>
`))

type webHandler struct {
	auth    *auth.Service
	distDir string
	logger  *slog.Logger
}

// registerWeb adds the pages, sign-in and sign-out routes to r.
func registerWeb(r chi.Router, deps Deps) {
	h := &webHandler{auth: deps.Auth, distDir: deps.DistDir, logger: deps.logger()}

	r.Get("/login", h.LoginPage)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)

	if h.distDir != "" {
		r.Handle("/assets/*", http.FileServer(http.Dir(h.distDir)))
	}

	r.Group(func(r chi.Router) {
		if deps.Auth != nil {
			r.Use(PageGuard(deps.Auth))
		}
		for _, p := range Pages {
			r.Get(p.Path, h.page(p))
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusFound)
	})
}

func (h *webHandler) page(p Page) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.distDir != "" {
			index := filepath.Join(h.distDir, "index.html")
			if _, err := os.Stat(index); err == nil {
				http.ServeFile(w, r, index)
				return
			}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err := shellTmpl.Execute(w, map[string]any{
			"Path":        p.Path,
			"Title":       p.Title,
			"Pages":       Pages,
			"AuthEnabled": h.auth != nil,
		})
		if err != nil {
			h.logger.Error("render shell failed", slog.String("error", err.Error()))
		}
	}
}

// LoginPage handles GET /login. Signed-in users go straight to the target.
func (h *webHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	target := SafeRedirect(r.URL.Query().Get("redirect"))
	if h.auth == nil {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	if _, ok := h.auth.CurrentSession(sessionToken(r)); ok {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := loginTmpl.Execute(w, map[string]any{
		"Redirect": target,
		"Failed":   r.URL.Query().Get("error") != "",
	})
	if err != nil {
		h.logger.Error("render login failed", slog.String("error", err.Error()))
	}
}

func isJSON(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/json"
}

// Login handles POST /login with either a form or a JSON LoginRequest.
// Form posts are redirected; JSON clients get a LoginResponse.
func (h *webHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		writeJSON(w, http.StatusNotFound, errorBody("authentication is disabled"))
		return
	}

	var req LoginRequest
	jsonClient := isJSON(r)
	if jsonClient {
		if !decodeJSON(w, r, &req) {
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		req = LoginRequest{
			Identifier: r.PostForm.Get("identifier"),
			Secret:     r.PostForm.Get("secret"),
			Redirect:   r.PostForm.Get("redirect"),
		}
	}
	target := SafeRedirect(req.Redirect)

	sess, err := h.auth.SignIn(r.Context(), req.Identifier, req.Secret)
	if err != nil {
		if !errors.Is(err, apperr.ErrUnauthorized) && !errors.Is(err, apperr.ErrInvalid) {
			h.logger.Error("sign in failed", slog.String("error", err.Error()))
		}
		if jsonClient {
			writeError(w, h.logger, "sign in", err)
			return
		}
		http.Redirect(w, r, LoginURL(target)+"&error=1", http.StatusSeeOther)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	if jsonClient {
		writeJSON(w, http.StatusOK, LoginResponse{
			Token:     sess.Token,
			Email:     sess.Email,
			ExpiresAt: sess.ExpiresAt,
			Redirect:  target,
		})
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// Logout handles POST /logout. Bearer clients get 204; browsers are sent to
// the login page.
func (h *webHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.auth != nil {
		_ = h.auth.SignOut(r.Context(), sessionToken(r))
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	if r.Header.Get("Authorization") != "" || isJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
