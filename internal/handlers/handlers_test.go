package handlers

import (
	"bytes"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"budget-tracker/internal/events"
	"budget-tracker/internal/pictures"
	"budget-tracker/internal/service"
	"budget-tracker/internal/storage"
	"budget-tracker/web"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// HandlersTestSuite drives the pages through a real HTTP server backed by an in-memory database.
type HandlersTestSuite struct {
	suite.Suite
	db         *storage.DB
	pictureDir string
	server     *httptest.Server
}

func (suite *HandlersTestSuite) SetupTest() {
	db, err := storage.NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db

	suite.pictureDir = suite.T().TempDir()
	h := NewHandlers(
		service.NewAuthService(db, db, events.Nop{}),
		service.NewRecordService(db, events.Nop{}),
		pictures.NewStore(suite.pictureDir),
		Options{Templates: web.Templates()},
	)
	suite.server = httptest.NewServer(h.SessionMiddleware(h.Routes(suite.T().TempDir())))
}

func (suite *HandlersTestSuite) TearDownTest() {
	if suite.server != nil {
		suite.server.Close()
	}
	if suite.db != nil {
		suite.db.Close()
	}
}

// client returns a browser-like client that keeps cookies and does not follow redirects.
func (suite *HandlersTestSuite) client() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(suite.T(), err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (suite *HandlersTestSuite) get(c *http.Client, path string) (*http.Response, string) {
	resp, err := c.Get(suite.server.URL + path)
	require.NoError(suite.T(), err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(suite.T(), err)
	return resp, string(body)
}

func (suite *HandlersTestSuite) post(c *http.Client, path string, form url.Values) (*http.Response, string) {
	resp, err := c.PostForm(suite.server.URL+path, form)
	require.NoError(suite.T(), err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(suite.T(), err)
	return resp, string(body)
}

func (suite *HandlersTestSuite) register(c *http.Client, name, email string) {
	resp, _ := suite.post(c, "/registruotis", url.Values{
		"name":     {name},
		"email":    {email},
		"password": {"secret"},
		"confirm":  {"secret"},
	})
	require.Equal(suite.T(), http.StatusFound, resp.StatusCode, "registration should redirect")
}

func (suite *HandlersTestSuite) login(c *http.Client, email string) {
	resp, _ := suite.post(c, "/prisijungti", url.Values{"email": {email}, "password": {"secret"}})
	require.Equal(suite.T(), http.StatusFound, resp.StatusCode, "login should redirect")
}

// signedIn registers and logs in a fresh user.
func (suite *HandlersTestSuite) signedIn(name, email string) *http.Client {
	c := suite.client()
	suite.register(c, name, email)
	suite.login(c, email)
	return c
}

func (suite *HandlersTestSuite) createRecord(c *http.Client, amount string, income bool) {
	form := url.Values{"amount": {amount}}
	if income {
		form.Set("income", "on")
	}
	resp, _ := suite.post(c, "/naujas_irasas", form)
	require.Equal(suite.T(), http.StatusFound, resp.StatusCode, "record creation should redirect")
	require.Equal(suite.T(), "/irasai", resp.Header.Get("Location"))
}

func (suite *HandlersTestSuite) TestRegisterLoginRecordsBalance() {
	c := suite.client()
	suite.register(c, "jonas", "jonas@example.com")

	_, body := suite.get(c, "/")
	assert.Contains(suite.T(), body, "Sėkmingai prisiregistravote! Galite prisijungti")

	suite.login(c, "jonas@example.com")
	suite.createRecord(c, "100", true)
	suite.createRecord(c, "30", false)

	resp, body := suite.get(c, "/irasai")
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Contains(suite.T(), body, "Įrašas sukurtas")
	assert.Contains(suite.T(), body, "-30")
	assert.Contains(suite.T(), body, ">100<")

	resp, body = suite.get(c, "/balansas")
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Contains(suite.T(), body, "70 Eur")
}

func (suite *HandlersTestSuite) TestProtectedRouteRedirectsToLogin() {
	c := suite.client()

	for _, path := range []string{"/irasai", "/balansas", "/paskyra", "/naujas_irasas", "/update/1", "/delete/1"} {
		resp, _ := suite.get(c, path)
		assert.Equal(suite.T(), http.StatusFound, resp.StatusCode, path)
		assert.Equal(suite.T(), "/prisijungti?next="+url.QueryEscape(path), resp.Header.Get("Location"), path)
	}

	_, body := suite.get(c, "/prisijungti?next=%2Fbalansas")
	assert.Contains(suite.T(), body, "Norėdami pasiekti šį puslapį, prisijunkite.")
	assert.Contains(suite.T(), body, `name="next" value="/balansas"`)
}

func (suite *HandlersTestSuite) TestLoginRedirectsToNext() {
	c := suite.client()
	suite.register(c, "jonas", "jonas@example.com")

	resp, _ := suite.post(c, "/prisijungti?next=%2Fbalansas", url.Values{
		"email":    {"jonas@example.com"},
		"password": {"secret"},
	})
	assert.Equal(suite.T(), http.StatusFound, resp.StatusCode)
	assert.Equal(suite.T(), "/balansas", resp.Header.Get("Location"))
}

func (suite *HandlersTestSuite) TestLoginFailure() {
	c := suite.client()
	suite.register(c, "jonas", "jonas@example.com")

	resp, body := suite.post(c, "/prisijungti", url.Values{
		"email":    {"jonas@example.com"},
		"password": {"wrong"},
	})
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Contains(suite.T(), body, "Prisijungti nepavyko. Patikrinkite el. paštą ir slaptažodį")

	resp, _ = suite.get(c, "/irasai")
	assert.Equal(suite.T(), http.StatusFound, resp.StatusCode, "no session after a failed login")
}

func (suite *HandlersTestSuite) TestDuplicateRegistration() {
	c := suite.client()
	suite.register(c, "jonas", "jonas@example.com")

	resp, body := suite.post(c, "/registruotis", url.Values{
		"name":     {"petras"},
		"email":    {"jonas@example.com"},
		"password": {"secret"},
		"confirm":  {"secret"},
	})
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Contains(suite.T(), body, "jau užregistruotas")

	_, err := suite.db.GetUserByName(suite.T().Context(), "petras")
	assert.ErrorIs(suite.T(), err, storage.ErrNotFound, "second account was not created")
}

func (suite *HandlersTestSuite) TestRegistrationValidation() {
	c := suite.client()

	resp, body := suite.post(c, "/registruotis", url.Values{
		"name":     {"j"},
		"email":    {"not-an-email"},
		"password": {"secret"},
		"confirm":  {"other"},
	})
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Contains(suite.T(), body, "Turi būti bent 2 simbolių.")
	assert.Contains(suite.T(), body, "Neteisingas el. pašto adresas.")
	assert.Contains(suite.T(), body, "Slaptažodžiai nesutampa.")
}

func (suite *HandlersTestSuite) TestRegistrationOverlongPassword() {
	c := suite.client()
	password := strings.Repeat("a", 73)

	resp, body := suite.post(c, "/registruotis", url.Values{
		"name":     {"jonas"},
		"email":    {"jonas@example.com"},
		"password": {password},
		"confirm":  {password},
	})
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Contains(suite.T(), body, "Slaptažodis per ilgas")

	_, err := suite.db.GetUserByEmail(suite.T().Context(), "jonas@example.com")
	assert.ErrorIs(suite.T(), err, storage.ErrNotFound)
}

func (suite *HandlersTestSuite) TestSignedInUserSkipsAuthPages() {
	c := suite.signedIn("jonas", "jonas@example.com")

	for _, path := range []string{"/registruotis", "/prisijungti"} {
		resp, _ := suite.get(c, path)
		assert.Equal(suite.T(), http.StatusFound, resp.StatusCode, path)
		assert.Equal(suite.T(), "/", resp.Header.Get("Location"), path)
	}
}

func (suite *HandlersTestSuite) TestLogout() {
	c := suite.signedIn("jonas", "jonas@example.com")

	resp, _ := suite.get(c, "/atsijungti")
	assert.Equal(suite.T(), http.StatusFound, resp.StatusCode)

	resp, _ = suite.get(c, "/balansas")
	assert.Equal(suite.T(), http.StatusFound, resp.StatusCode, "session is gone after logout")
}

func (suite *HandlersTestSuite) TestRememberMeCookie() {
	c := suite.client()
	suite.register(c, "jonas", "jonas@example.com")

	sessionCookie := func(remember bool) *http.Cookie {
		form := url.Values{"email": {"jonas@example.com"}, "password": {"secret"}}
		if remember {
			form.Set("remember", "on")
		}
		resp, _ := suite.post(suite.client(), "/prisijungti", form)
		for _, ck := range resp.Cookies() {
			if ck.Name == SessionCookieName {
				return ck
			}
		}
		suite.T().Fatal("no session cookie set")
		return nil
	}

	remembered := sessionCookie(true)
	assert.Greater(suite.T(), remembered.MaxAge, 29*24*3600, "remembered sessions persist for 30 days")

	browser := sessionCookie(false)
	assert.Zero(suite.T(), browser.MaxAge, "sessions end with the browser")
	assert.True(suite.T(), browser.HttpOnly)
}

func (suite *HandlersTestSuite) TestRecordValidation() {
	c := suite.signedIn("jonas", "jonas@example.com")

	for _, amount := range []string{"", "abc", "-5", "1.5", "1000000000001", "9223372036854775807"} {
		resp, body := suite.post(c, "/naujas_irasas", url.Values{"amount": {amount}})
		assert.Equal(suite.T(), http.StatusOK, resp.StatusCode, "amount %q", amount)
		assert.Contains(suite.T(), body, `class="error"`, "amount %q", amount)
	}

	_, body := suite.get(c, "/balansas")
	assert.Contains(suite.T(), body, "0 Eur")
}

func (suite *HandlersTestSuite) TestEditRecord() {
	c := suite.signedIn("jonas", "jonas@example.com")
	suite.createRecord(c, "30", false)

	resp, body := suite.get(c, "/update/1")
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Contains(suite.T(), body, `value="30"`)

	resp, _ = suite.post(c, "/update/1", url.Values{"amount": {"45"}, "income": {"on"}})
	assert.Equal(suite.T(), http.StatusFound, resp.StatusCode)

	_, body = suite.get(c, "/balansas")
	assert.Contains(suite.T(), body, "45 Eur")
}

func (suite *HandlersTestSuite) TestDeleteRecord() {
	c := suite.signedIn("jonas", "jonas@example.com")
	suite.createRecord(c, "30", true)

	resp, _ := suite.get(c, "/delete/1")
	assert.Equal(suite.T(), http.StatusFound, resp.StatusCode)
	assert.Equal(suite.T(), "/irasai", resp.Header.Get("Location"))

	resp, _ = suite.get(c, "/delete/1")
	assert.Equal(suite.T(), http.StatusNotFound, resp.StatusCode, "second delete finds nothing")
}

func (suite *HandlersTestSuite) TestOtherUsersRecordsAreNotFound() {
	owner := suite.signedIn("jonas", "jonas@example.com")
	suite.createRecord(owner, "100", true)

	intruder := suite.signedIn("petras", "petras@example.com")

	resp, _ := suite.get(intruder, "/update/1")
	assert.Equal(suite.T(), http.StatusNotFound, resp.StatusCode)

	resp, _ = suite.post(intruder, "/update/1", url.Values{"amount": {"1"}})
	assert.Equal(suite.T(), http.StatusNotFound, resp.StatusCode)

	resp, _ = suite.get(intruder, "/delete/1")
	assert.Equal(suite.T(), http.StatusNotFound, resp.StatusCode)

	_, body := suite.get(owner, "/balansas")
	assert.Contains(suite.T(), body, "100 Eur", "owner's record is untouched")
}

func (suite *HandlersTestSuite) TestNonNumericIDIsNotFound() {
	c := suite.signedIn("jonas", "jonas@example.com")

	resp, _ := suite.get(c, "/update/abc")
	assert.Equal(suite.T(), http.StatusNotFound, resp.StatusCode)

	resp, _ = suite.get(c, "/delete/abc")
	assert.Equal(suite.T(), http.StatusNotFound, resp.StatusCode)
}

func (suite *HandlersTestSuite) TestPagination() {
	c := suite.signedIn("jonas", "jonas@example.com")
	for _, amount := range []string{"1", "2", "3", "4"} {
		suite.createRecord(c, amount, true)
	}

	_, body := suite.get(c, "/irasai")
	assert.Contains(suite.T(), body, "1 / 2")
	assert.Contains(suite.T(), body, "/irasai?page=2")
	assert.Equal(suite.T(), 3, strings.Count(body, "/update/"))

	_, body = suite.get(c, "/irasai?page=2")
	assert.Contains(suite.T(), body, "2 / 2")
	assert.Equal(suite.T(), 1, strings.Count(body, "/update/"))

	resp, body := suite.get(c, "/irasai?page=9")
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Contains(suite.T(), body, "Įrašų nėra.")

	resp, body = suite.get(c, "/irasai?page=4611686018427387905")
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Contains(suite.T(), body, "Įrašų nėra.")

	_, body = suite.get(c, "/irasai?page=abc")
	assert.Contains(suite.T(), body, "1 / 2")
}

func (suite *HandlersTestSuite) TestHTMXRendersContentOnly() {
	c := suite.client()

	req, err := http.NewRequest(http.MethodGet, suite.server.URL+"/prisijungti", http.NoBody)
	require.NoError(suite.T(), err)
	req.Header.Set("HX-Request", "true")

	resp, err := c.Do(req)
	require.NoError(suite.T(), err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(suite.T(), err)

	assert.NotContains(suite.T(), string(body), "<!DOCTYPE html>")
	assert.Contains(suite.T(), string(body), `action="/prisijungti"`)
}

func (suite *HandlersTestSuite) TestUpdateAccountWithPicture() {
	c := suite.signedIn("jonas", "jonas@example.com")

	var img bytes.Buffer
	require.NoError(suite.T(), png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 300, 200))))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(suite.T(), mw.WriteField("name", "Jonas"))
	require.NoError(suite.T(), mw.WriteField("email", "jonas.naujas@example.com"))
	part, err := mw.CreateFormFile("picture", "me.png")
	require.NoError(suite.T(), err)
	_, err = part.Write(img.Bytes())
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), mw.Close())

	resp, err := c.Post(suite.server.URL+"/paskyra", mw.FormDataContentType(), &body)
	require.NoError(suite.T(), err)
	resp.Body.Close()
	assert.Equal(suite.T(), http.StatusFound, resp.StatusCode)

	user, err := suite.db.GetUserByEmail(suite.T().Context(), "jonas.naujas@example.com")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Jonas", user.Name)
	assert.NotEqual(suite.T(), "default.svg", user.Picture)
	assert.FileExists(suite.T(), filepath.Join(suite.pictureDir, user.Picture))

	_, page := suite.get(c, "/paskyra")
	assert.Contains(suite.T(), page, "Tavo paskyra atnaujinta!")
	assert.Contains(suite.T(), page, pictures.URL(user.Picture))
}

func (suite *HandlersTestSuite) TestUpdateAccountRejectsUnsupportedPicture() {
	c := suite.signedIn("jonas", "jonas@example.com")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(suite.T(), mw.WriteField("name", "jonas"))
	require.NoError(suite.T(), mw.WriteField("email", "jonas@example.com"))
	part, err := mw.CreateFormFile("picture", "notes.txt")
	require.NoError(suite.T(), err)
	_, err = part.Write([]byte("hello"))
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), mw.Close())

	resp, err := c.Post(suite.server.URL+"/paskyra", mw.FormDataContentType(), &body)
	require.NoError(suite.T(), err)
	defer resp.Body.Close()
	page, err := io.ReadAll(resp.Body)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Contains(suite.T(), string(page), "Leidžiami tik jpg, png ir gif paveikslėliai.")

	entries, err := os.ReadDir(suite.pictureDir)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), entries)
}

func (suite *HandlersTestSuite) TestUpdateAccountDuplicateName() {
	suite.signedIn("petras", "petras@example.com")
	c := suite.signedIn("jonas", "jonas@example.com")

	resp, body := suite.post(c, "/paskyra", url.Values{"name": {"petras"}, "email": {"jonas@example.com"}})
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Contains(suite.T(), body, "Toks vardas arba el. paštas jau užimtas.")
}

func TestHandlersTestSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}

func TestSafeNext(t *testing.T) {
	tests := []struct {
		next string
		want string
	}{
		{"", "/"},
		{"/irasai", "/irasai"},
		{"/irasai?page=2", "/irasai?page=2"},
		{"https://evil.example.com", "/"},
		{"//evil.example.com", "/"},
		{"/\\evil.example.com", "/"},
		{"irasai", "/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, safeNext(tt.next), "safeNext(%q)", tt.next)
	}
}

func TestFlashRoundTrip(t *testing.T) {
	h := &Handlers{}

	w := httptest.NewRecorder()
	h.flash(w, FlashSuccess, "Įrašas sukurtas")

	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	for _, c := range w.Result().Cookies() {
		r.AddCookie(c)
	}

	w2 := httptest.NewRecorder()
	flashes := h.popFlashes(w2, r)
	require.Len(t, flashes, 1)
	assert.Equal(t, Flash{Category: FlashSuccess, Message: "Įrašas sukurtas"}, flashes[0])

	cleared := w2.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge, "flash cookie is cleared once read")
}

func TestHealth(t *testing.T) {
	ok := Health(func(*http.Request) error { return nil })
	w := httptest.NewRecorder()
	ok(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)

	down := Health(func(*http.Request) error { return assert.AnError })
	w = httptest.NewRecorder()
	down(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
