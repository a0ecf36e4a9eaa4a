package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"budget-tracker/internal/models"
	"budget-tracker/internal/service"
)

// ListViewModel is the data passed to the record list template.
type ListViewModel struct {
	Base
	Page *service.Page
}

// ListRecords renders one page of the user's records.
func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	page := 1
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		page = p
	}

	result, err := h.records.List(r.Context(), user.ID, page, service.DefaultPageSize)
	if err != nil {
		h.internalError(w, r, "ListRecords error", err)
		return
	}
	h.render(w, r, http.StatusOK, "records.html", &ListViewModel{Base: Base{Title: "Įrašai"}, Page: result})
}

// FormViewModel is the data passed to the create/edit form template.
type FormViewModel struct {
	Base
	Record *models.Record
	IsEdit bool
	Form   RecordForm
	Errors FormErrors
}

// CreateRecordForm renders the form to create a new record.
func (h *Handlers) CreateRecordForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "record_form.html", &FormViewModel{Base: Base{Title: "Naujas įrašas"}})
}

// CreateRecord handles the creation of a new record.
func (h *Handlers) CreateRecord(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	form := parseRecordForm(r)

	amount, errs := h.checkRecord(form)
	if errs != nil {
		h.render(w, r, http.StatusOK, "record_form.html", &FormViewModel{
			Base: Base{Title: "Naujas įrašas"}, Form: form, Errors: errs,
		})
		return
	}

	if _, err := h.records.Create(r.Context(), user.ID, form.Income, amount); err != nil {
		h.internalError(w, r, "CreateRecord error", err)
		return
	}
	h.flash(w, FlashSuccess, "Įrašas sukurtas")
	http.Redirect(w, r, "/irasai", http.StatusFound)
}

// EditRecordForm renders the form to edit an existing record.
func (h *Handlers) EditRecordForm(w http.ResponseWriter, r *http.Request) {
	record, ok := h.ownedRecord(w, r)
	if !ok {
		return
	}
	h.render(w, r, http.StatusOK, "record_form.html", &FormViewModel{
		Base:   Base{Title: "Redaguoti įrašą"},
		Record: record,
		IsEdit: true,
		Form:   RecordForm{Income: record.IsIncome, Amount: strconv.FormatInt(record.Amount, 10)},
	})
}

// UpdateRecord handles the update of an existing record.
func (h *Handlers) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	id, ok := pathID(r)
	if !ok {
		h.renderError(w, r, http.StatusNotFound, "Įrašas nerastas")
		return
	}

	form := parseRecordForm(r)
	amount, errs := h.checkRecord(form)
	if errs != nil {
		record, ok := h.ownedRecord(w, r)
		if !ok {
			return
		}
		h.render(w, r, http.StatusOK, "record_form.html", &FormViewModel{
			Base: Base{Title: "Redaguoti įrašą"}, Record: record, IsEdit: true, Form: form, Errors: errs,
		})
		return
	}

	if err := h.records.Update(r.Context(), user.ID, id, form.Income, amount); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			h.renderError(w, r, http.StatusNotFound, "Įrašas nerastas")
			return
		}
		h.internalError(w, r, "UpdateRecord error", err)
		return
	}
	h.flash(w, FlashSuccess, "Įrašas atnaujintas")
	http.Redirect(w, r, "/irasai", http.StatusFound)
}

// DeleteRecord removes a record and returns to the list.
func (h *Handlers) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	id, ok := pathID(r)
	if !ok {
		h.renderError(w, r, http.StatusNotFound, "Įrašas nerastas")
		return
	}

	if err := h.records.Delete(r.Context(), user.ID, id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			h.renderError(w, r, http.StatusNotFound, "Įrašas nerastas")
			return
		}
		h.internalError(w, r, "DeleteRecord error", err)
		return
	}
	h.flash(w, FlashSuccess, "Įrašas ištrintas")
	http.Redirect(w, r, "/irasai", http.StatusFound)
}

// BalanceViewModel is the data passed to the balance template.
type BalanceViewModel struct {
	Base
	Balance int64
}

// Balance renders the user's signed total.
func (h *Handlers) Balance(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	balance, err := h.records.Balance(r.Context(), user.ID)
	if err != nil {
		h.internalError(w, r, "Balance error", err)
		return
	}
	h.render(w, r, http.StatusOK, "balance.html", &BalanceViewModel{Base: Base{Title: "Balansas"}, Balance: balance})
}

// ownedRecord loads the {id} record of the current user, rendering 404 when absent.
func (h *Handlers) ownedRecord(w http.ResponseWriter, r *http.Request) (*models.Record, bool) {
	id, ok := pathID(r)
	if !ok {
		h.renderError(w, r, http.StatusNotFound, "Įrašas nerastas")
		return nil, false
	}
	record, err := h.records.Get(r.Context(), GetUserFromContext(r).ID, id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			h.renderError(w, r, http.StatusNotFound, "Įrašas nerastas")
			return nil, false
		}
		h.internalError(w, r, "GetRecord error", err)
		return nil, false
	}
	return record, true
}

// Health reports whether the database is reachable.
func Health(ping func(r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := ping(r); err != nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	}
}
