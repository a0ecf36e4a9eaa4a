package handlers

import (
	"errors"
	"net/http"

	"budget-tracker/internal/auth"
	applog "budget-tracker/internal/log"
	"budget-tracker/internal/pictures"
	"budget-tracker/internal/service"
)

// maxUploadSize bounds profile picture uploads.
const maxUploadSize = 4 << 20

// RegisterViewModel holds data for the registration page.
type RegisterViewModel struct {
	Base
	Form   RegisterForm
	Errors FormErrors
}

// RegisterForm renders the registration page.
func (h *Handlers) RegisterForm(w http.ResponseWriter, r *http.Request) {
	if GetUserFromContext(r) != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	h.render(w, r, http.StatusOK, "register.html", &RegisterViewModel{Base: Base{Title: "Registracija"}})
}

// Register handles the registration form submission.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if GetUserFromContext(r) != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	form := parseRegisterForm(r)
	vm := &RegisterViewModel{Base: Base{Title: "Registracija"}, Form: form}
	vm.Form.Password, vm.Form.Confirm = "", ""

	if errs := h.check(form); errs != nil {
		vm.Errors = errs
		h.render(w, r, http.StatusOK, "register.html", vm)
		return
	}

	if _, err := h.auth.Register(r.Context(), form.Name, form.Email, form.Password); err != nil {
		if errors.Is(err, service.ErrDuplicateIdentity) {
			vm.Flashes = []Flash{{FlashDanger, "Toks vardas arba el. paštas jau užregistruotas."}}
			h.render(w, r, http.StatusOK, "register.html", vm)
			return
		}
		if errors.Is(err, auth.ErrPasswordTooLong) {
			vm.Errors = FormErrors{"password": passwordTooLong}
			h.render(w, r, http.StatusOK, "register.html", vm)
			return
		}
		h.internalError(w, r, "Register failed", err)
		return
	}

	h.flash(w, FlashSuccess, "Sėkmingai prisiregistravote! Galite prisijungti")
	http.Redirect(w, r, "/", http.StatusFound)
}

// LoginViewModel holds data for the login page.
type LoginViewModel struct {
	Base
	Form   LoginForm
	Errors FormErrors
	Next   string
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	// If already logged in, go home
	if GetUserFromContext(r) != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	h.render(w, r, http.StatusOK, "login.html", &LoginViewModel{
		Base: Base{Title: "Prisijungti"},
		Next: r.URL.Query().Get("next"),
	})
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if GetUserFromContext(r) != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	form := parseLoginForm(r)
	next := r.URL.Query().Get("next")
	if next == "" {
		next = r.PostFormValue("next")
	}
	vm := &LoginViewModel{Base: Base{Title: "Prisijungti"}, Form: form, Next: next}
	vm.Form.Password = ""

	if errs := h.check(form); errs != nil {
		vm.Errors = errs
		h.render(w, r, http.StatusOK, "login.html", vm)
		return
	}

	session, err := h.auth.Login(r.Context(), form.Email, form.Password, form.Remember)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			vm.Flashes = []Flash{{FlashDanger, "Prisijungti nepavyko. Patikrinkite el. paštą ir slaptažodį"}}
			h.render(w, r, http.StatusOK, "login.html", vm)
			return
		}
		h.internalError(w, r, "Login failed", err)
		return
	}

	h.setSessionCookie(w, *session)
	http.Redirect(w, r, safeNext(next), http.StatusFound)
}

// Logout handles user logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if err := h.auth.Logout(r.Context(), cookie.Value); err != nil {
			applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to delete session",
				applog.FieldOperation, applog.OpLogout,
				applog.FieldError, err)
		}
	}
	h.clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

// AccountViewModel holds data for the profile page.
type AccountViewModel struct {
	Base
	Form   AccountForm
	Errors FormErrors
}

// AccountForm renders the profile page with the current values.
func (h *Handlers) AccountForm(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	h.render(w, r, http.StatusOK, "account.html", &AccountViewModel{
		Base: Base{Title: "Paskyra"},
		Form: AccountForm{Name: user.Name, Email: user.Email},
	})
}

// UpdateAccount handles the profile form, including an optional picture upload.
func (h *Handlers) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.render(w, r, http.StatusOK, "account.html", &AccountViewModel{
			Base:   Base{Title: "Paskyra"},
			Form:   AccountForm{Name: user.Name, Email: user.Email},
			Errors: FormErrors{"picture": "Failas per didelis."},
		})
		return
	}

	form := parseAccountForm(r)
	vm := &AccountViewModel{Base: Base{Title: "Paskyra"}, Form: form}
	if errs := h.check(form); errs != nil {
		vm.Errors = errs
		h.render(w, r, http.StatusOK, "account.html", vm)
		return
	}

	picture, ok := h.savePicture(w, r, vm)
	if !ok {
		return
	}

	if _, err := h.auth.UpdateProfile(r.Context(), user.ID, form.Name, form.Email, picture); err != nil {
		if picture != "" {
			h.pictures.Remove(picture)
		}
		if errors.Is(err, service.ErrDuplicateIdentity) {
			vm.Flashes = []Flash{{FlashDanger, "Toks vardas arba el. paštas jau užimtas."}}
			h.render(w, r, http.StatusOK, "account.html", vm)
			return
		}
		h.internalError(w, r, "Profile update failed", err)
		return
	}

	if picture != "" {
		h.pictures.Remove(user.Picture)
	}

	h.flash(w, FlashSuccess, "Tavo paskyra atnaujinta!")
	http.Redirect(w, r, "/paskyra", http.StatusFound)
}

// savePicture stores the uploaded picture, if any. It renders the form and
// returns false when the upload is rejected.
func (h *Handlers) savePicture(w http.ResponseWriter, r *http.Request, vm *AccountViewModel) (string, bool) {
	file, header, err := r.FormFile("picture")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return "", true
	}
	if err != nil {
		vm.Errors = FormErrors{"picture": "Nepavyko nuskaityti failo."}
		h.render(w, r, http.StatusOK, "account.html", vm)
		return "", false
	}
	defer file.Close()

	name, err := h.pictures.Save(file, header.Filename)
	if err != nil {
		if errors.Is(err, pictures.ErrUnsupportedImage) {
			vm.Errors = FormErrors{"picture": "Leidžiami tik jpg, png ir gif paveikslėliai."}
			h.render(w, r, http.StatusOK, "account.html", vm)
			return "", false
		}
		h.internalError(w, r, "Saving picture failed", err)
		return "", false
	}
	return name, true
}
