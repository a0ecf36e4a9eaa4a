package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"budget-tracker/internal/auth"
	"budget-tracker/internal/service"

	"github.com/go-playground/validator/v10"
)

// RegisterForm is the registration form.
type RegisterForm struct {
	Name     string `form:"name" validate:"required,min=2,max=20"`
	Email    string `form:"email" validate:"required,email,max=120"`
	Password string `form:"password" validate:"required,min=3,pwbytes"`
	Confirm  string `form:"confirm" validate:"required,eqfield=Password"`
}

// LoginForm is the login form.
type LoginForm struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
	Remember bool   `form:"remember"`
}

// AccountForm is the profile edit form. The picture is read separately.
type AccountForm struct {
	Name  string `form:"name" validate:"required,min=2,max=20"`
	Email string `form:"email" validate:"required,email,max=120"`
}

// RecordForm is the create/edit record form.
type RecordForm struct {
	Income bool   `form:"income"`
	Amount string `form:"amount" validate:"required"`
}

var passwordTooLong = fmt.Sprintf("Slaptažodis per ilgas: daugiausia %d baitų.", auth.MaxPasswordBytes)

// FormErrors maps form field names to a message.
type FormErrors map[string]string

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("form")
	})
	// bcrypt limits passwords by bytes, not characters.
	_ = v.RegisterValidation("pwbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= auth.MaxPasswordBytes
	})
	return v
}

// check validates form and returns one message per failing field.
func (h *Handlers) check(form any) FormErrors {
	err := h.validate.Struct(form)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FormErrors{"": err.Error()}
	}

	out := FormErrors{}
	for _, fe := range verrs {
		if _, seen := out[fe.Field()]; !seen {
			out[fe.Field()] = message(fe)
		}
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Šis laukas privalomas."
	case "email":
		return "Neteisingas el. pašto adresas."
	case "min":
		return fmt.Sprintf("Turi būti bent %s simbolių.", fe.Param())
	case "max":
		return fmt.Sprintf("Turi būti ne daugiau kaip %s simbolių.", fe.Param())
	case "eqfield":
		return "Slaptažodžiai nesutampa."
	case "pwbytes":
		return passwordTooLong
	default:
		return "Neteisinga reikšmė."
	}
}

func parseRegisterForm(r *http.Request) RegisterForm {
	return RegisterForm{
		Name:     strings.TrimSpace(r.PostFormValue("name")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
		Confirm:  r.PostFormValue("confirm"),
	}
}

func parseLoginForm(r *http.Request) LoginForm {
	return LoginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
		Remember: checkbox(r.PostFormValue("remember")),
	}
}

func parseAccountForm(r *http.Request) AccountForm {
	return AccountForm{
		Name:  strings.TrimSpace(r.PostFormValue("name")),
		Email: strings.TrimSpace(r.PostFormValue("email")),
	}
}

func parseRecordForm(r *http.Request) RecordForm {
	return RecordForm{
		Income: checkbox(r.PostFormValue("income")),
		Amount: strings.TrimSpace(r.PostFormValue("amount")),
	}
}

// checkRecord validates the form and converts the amount. Amounts are
// non-negative whole numbers; the income flag carries the sign.
func (h *Handlers) checkRecord(form RecordForm) (int64, FormErrors) {
	if errs := h.check(form); errs != nil {
		return 0, errs
	}
	amount, err := strconv.ParseInt(form.Amount, 10, 64)
	if err != nil {
		return 0, FormErrors{"amount": "Suma turi būti sveikasis skaičius."}
	}
	if amount < 0 {
		return 0, FormErrors{"amount": "Suma negali būti neigiama."}
	}
	if amount > service.MaxAmount {
		return 0, FormErrors{"amount": fmt.Sprintf("Suma negali viršyti %d.", service.MaxAmount)}
	}
	return amount, nil
}

func checkbox(v string) bool {
	switch strings.ToLower(v) {
	case "on", "true", "1", "y", "yes":
		return true
	}
	return false
}
