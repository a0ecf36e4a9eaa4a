package handlers

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	applog "budget-tracker/internal/log"
	"budget-tracker/internal/models"
	"budget-tracker/internal/pictures"
	"budget-tracker/internal/service"

	"github.com/go-playground/validator/v10"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey contextKey = "user"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
)

// Options holds the optional settings of Handlers.
type Options struct {
	// Templates holds base.html and the page templates.
	Templates    fs.FS
	SecureCookie bool
	// AuthLimiter throttles login and registration submissions; nil disables it.
	AuthLimiter *RateLimiter
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	auth         *service.AuthService
	records      *service.RecordService
	pictures     *pictures.Store
	templates    fs.FS
	secureCookie bool
	limiter      *RateLimiter
	validate     *validator.Validate
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(authSvc *service.AuthService, recordSvc *service.RecordService, pics *pictures.Store, opts Options) *Handlers {
	return &Handlers{
		auth:         authSvc,
		records:      recordSvc,
		pictures:     pics,
		templates:    opts.Templates,
		secureCookie: opts.SecureCookie,
		limiter:      opts.AuthLimiter,
		validate:     newValidator(),
	}
}

// Routes registers every page on a new mux. Static files are served from staticDir.
func (h *Handlers) Routes(staticDir string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))

	mux.HandleFunc("GET /{$}", h.Index)

	mux.HandleFunc("GET /registruotis", h.RegisterForm)
	mux.Handle("POST /registruotis", h.limit(http.HandlerFunc(h.Register)))
	mux.HandleFunc("GET /prisijungti", h.LoginForm)
	mux.Handle("POST /prisijungti", h.limit(http.HandlerFunc(h.Login)))
	mux.HandleFunc("GET /atsijungti", h.Logout)

	protected := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, h.AuthMiddleware(fn))
	}
	protected("GET /paskyra", h.AccountForm)
	protected("POST /paskyra", h.UpdateAccount)
	protected("GET /irasai", h.ListRecords)
	protected("GET /naujas_irasas", h.CreateRecordForm)
	protected("POST /naujas_irasas", h.CreateRecord)
	protected("GET /delete/{id}", h.DeleteRecord)
	protected("GET /update/{id}", h.EditRecordForm)
	protected("POST /update/{id}", h.UpdateRecord)
	protected("GET /balansas", h.Balance)

	return mux
}

func (h *Handlers) limit(next http.Handler) http.Handler {
	if h.limiter == nil {
		return next
	}
	return h.limiter.Middleware(next)
}

// GetUserFromContext retrieves the authenticated user from request context.
func GetUserFromContext(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// SessionMiddleware resolves the session cookie, when present, to a user and
// stores it in the request context. Invalid cookies are cleared.
// Sessions in the second half of their lifetime are renewed, cookie included.
func (h *Handlers) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := h.auth.Authenticate(r.Context(), cookie.Value)
		if err != nil {
			if !errors.Is(err, service.ErrUnauthenticated) {
				applog.FromContext(r.Context()).WithComponent(applog.ComponentAuth).
					ErrorContext(r.Context(), "Session lookup failed", applog.FieldError, err)
			}
			h.clearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		}

		if id.Renewed {
			h.setSessionCookie(w, id.Session)
		}

		ctx := context.WithValue(r.Context(), UserContextKey, id.User)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthMiddleware wraps handlers to require authentication. Anonymous visitors
// are sent to the login page, which returns them here afterwards.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserFromContext(r) == nil {
			h.flash(w, FlashInfo, "Norėdami pasiekti šį puslapį, prisijunkite.")
			http.Redirect(w, r, "/prisijungti?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, s models.Session) {
	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    s.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	// Sessions without "remember me" end with the browser session.
	if s.Persistent {
		cookie.MaxAge = int(time.Until(s.ExpiresAt).Seconds())
	}
	http.SetCookie(w, cookie)
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// Base is embedded by every view model.
type Base struct {
	Title   string
	User    *models.User
	Flashes []Flash
}

func (b *Base) base() *Base { return b }

type viewModel interface {
	base() *Base
}

// IndexViewModel is the data passed to the landing page.
type IndexViewModel struct {
	Base
}

// Index renders the landing page.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "index.html", &IndexViewModel{Base: Base{Title: "Biudžetas"}})
}

// ErrorViewModel is the data passed to the error page.
type ErrorViewModel struct {
	Base
	Status  int
	Message string
}

func (h *Handlers) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.render(w, r, status, "error.html", &ErrorViewModel{
		Base:    Base{Title: http.StatusText(status)},
		Status:  status,
		Message: message,
	})
}

func (h *Handlers) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	applog.FromContext(r.Context()).ErrorContext(r.Context(), msg, applog.FieldError, err)
	h.renderError(w, r, http.StatusInternalServerError, "Internal server error")
}

var templateFuncs = template.FuncMap{
	"pictureURL": pictures.URL,
	"datetime": func(t time.Time) string {
		return t.Local().Format("2006-01-02 15:04")
	},
	"signed": func(r models.Record) int64 { return r.Signed() },
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, status int, viewName string, vm viewModel) {
	b := vm.base()
	if b.User == nil {
		b.User = GetUserFromContext(r)
	}
	b.Flashes = append(h.popFlashes(w, r), b.Flashes...)

	tmpl, err := template.New("base.html").Funcs(templateFuncs).ParseFS(h.templates, "base.html", viewName)
	if err != nil {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentTemplate).
			ErrorContext(r.Context(), "Template error", applog.FieldError, err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}

	target := "base.html"
	if r.Header.Get("HX-Request") == "true" {
		target = "content"
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, target, vm); err != nil {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentTemplate).
			ErrorContext(r.Context(), "Template execution error", applog.FieldError, err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// pathID parses the {id} path segment.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// safeNext returns next when it is a local path, otherwise "/".
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
