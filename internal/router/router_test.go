package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/juju/clock/testclock"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/polteknik/kompen/internal/config"
	"github.com/polteknik/kompen/internal/handler"
	"github.com/polteknik/kompen/internal/metrics"
	"github.com/polteknik/kompen/internal/service"
	"github.com/polteknik/kompen/internal/store"
)

type server struct {
	c   *qt.C
	e   *echo.Echo
	mem *store.Memory
}

// newServer wires the full route table over the in-memory store.  Tokens
// are checked against the wall clock, so the test clock starts now.
func newServer(c *qt.C) *server {
	clk := testclock.NewClock(time.Now())
	mem := store.NewMemory(clk)
	rec := metrics.New()
	svc := service.New(service.Deps{Store: mem, Clock: clk, Metrics: rec, BcryptCost: bcrypt.MinCost})
	_, err := svc.Users.EnsureAdmin(context.Background(), "admin", "Admin", "rahasia-admin")
	c.Assert(err, qt.IsNil)

	cfg := config.Config{JWTSecret: "test-secret", AccessTTLMin: 15, RefreshTTLDays: 1}
	e := echo.New()
	Register(e, Deps{
		Auth:      handler.NewAuthHandler(cfg, mem, store.NewMemoryTokens(clk), svc.Users, clk),
		API:       handler.NewHandler(svc),
		JWTSecret: cfg.JWTSecret,
		Users:     mem,
		Metrics:   rec.Handler(),
		Clock:     clk,
	})
	return &server{c: c, e: e, mem: mem}
}

func (s *server) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		s.c.Assert(err, qt.IsNil)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *server) decode(rec *httptest.ResponseRecorder, v interface{}) {
	s.c.Helper()
	s.c.Assert(json.Unmarshal(rec.Body.Bytes(), v), qt.IsNil, qt.Commentf("body: %s", rec.Body))
}

type session struct {
	User struct {
		ID uint64 `json:"id"`
	} `json:"user"`
	Access  struct{ Token string } `json:"access"`
	Refresh struct{ Token string } `json:"refresh"`
}

func (s *server) login(username, password string) session {
	s.c.Helper()
	rec := s.do(http.MethodPost, "/v1/auth/login", "", echo.Map{"username": username, "password": password})
	s.c.Assert(rec.Code, qt.Equals, http.StatusOK, qt.Commentf("body: %s", rec.Body))
	var out session
	s.decode(rec, &out)
	return out
}

func (s *server) createUser(admin string, in echo.Map) uint64 {
	s.c.Helper()
	rec := s.do(http.MethodPost, "/v1/users", admin, in)
	s.c.Assert(rec.Code, qt.Equals, http.StatusCreated, qt.Commentf("body: %s", rec.Body))
	var out struct{ ID uint64 }
	s.decode(rec, &out)
	return out.ID
}

func TestHealthAndMetrics(t *testing.T) {
	c := qt.New(t)
	s := newServer(c)
	rec := s.do(http.MethodGet, "/healthz", "", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(rec.Body.String(), qt.Equals, "ok")

	rec = s.do(http.MethodGet, "/metrics", "", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(rec.Body.String(), qt.Contains, "kompen_hours_relieved_total")
}

func TestLogin(t *testing.T) {
	c := qt.New(t)
	s := newServer(c)

	rec := s.do(http.MethodPost, "/v1/auth/login", "", echo.Map{"username": "admin", "password": "salah-sandi"})
	c.Assert(rec.Code, qt.Equals, http.StatusUnauthorized)
	rec = s.do(http.MethodPost, "/v1/auth/login", "", echo.Map{"username": "nobody", "password": "x"})
	c.Assert(rec.Code, qt.Equals, http.StatusUnauthorized)
	rec = s.do(http.MethodPost, "/v1/auth/login", "", echo.Map{"username": "admin"})
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)

	sess := s.login("admin", "rahasia-admin")
	rec = s.do(http.MethodGet, "/v1/me", sess.Access.Token, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	var me struct {
		Username string
		Role     string
	}
	s.decode(rec, &me)
	c.Assert(me.Username, qt.Equals, "admin")
	c.Assert(me.Role, qt.Equals, "ADMIN")
}

func TestRefreshRotatesAndLogoutRevokes(t *testing.T) {
	c := qt.New(t)
	s := newServer(c)
	sess := s.login("admin", "rahasia-admin")

	rec := s.do(http.MethodPost, "/v1/auth/refresh", "", echo.Map{"refresh_token": sess.Refresh.Token})
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	var next session
	s.decode(rec, &next)
	c.Assert(next.Refresh.Token, qt.Not(qt.Equals), sess.Refresh.Token)

	rec = s.do(http.MethodPost, "/v1/auth/refresh", "", echo.Map{"refresh_token": sess.Refresh.Token})
	c.Assert(rec.Code, qt.Equals, http.StatusUnauthorized)

	rec = s.do(http.MethodPost, "/v1/auth/logout", next.Access.Token, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusNoContent)
	rec = s.do(http.MethodPost, "/v1/auth/refresh", "", echo.Map{"refresh_token": next.Refresh.Token})
	c.Assert(rec.Code, qt.Equals, http.StatusUnauthorized)

	rec = s.do(http.MethodPost, "/v1/auth/logout", "", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
}

func TestAuthGates(t *testing.T) {
	c := qt.New(t)
	s := newServer(c)
	admin := s.login("admin", "rahasia-admin").Access.Token
	s.createUser(admin, echo.Map{"username": "budi", "password": "rahasia1", "name": "Budi", "role": "mahasiswa", "nim": "2241720001"})
	student := s.login("budi", "rahasia1").Access.Token

	c.Assert(s.do(http.MethodGet, "/v1/jobs", "", nil).Code, qt.Equals, http.StatusUnauthorized)
	c.Assert(s.do(http.MethodGet, "/v1/jobs", "not-a-jwt", nil).Code, qt.Equals, http.StatusUnauthorized)
	c.Assert(s.do(http.MethodPost, "/v1/jobs", student, echo.Map{"title": "x", "hours": 1, "quota": 1}).Code,
		qt.Equals, http.StatusForbidden)
	c.Assert(s.do(http.MethodGet, "/v1/users", student, nil).Code, qt.Equals, http.StatusForbidden)
	c.Assert(s.do(http.MethodGet, "/v1/activity", student, nil).Code, qt.Equals, http.StatusForbidden)
	c.Assert(s.do(http.MethodGet, "/v1/settings", student, nil).Code, qt.Equals, http.StatusOK)
}

func TestRoleChangeAppliesToIssuedTokens(t *testing.T) {
	c := qt.New(t)
	s := newServer(c)
	admin := s.login("admin", "rahasia-admin").Access.Token
	id := s.createUser(admin, echo.Map{"username": "pak-joko", "password": "rahasia1", "name": "Joko", "role": "PENGAWAS"})
	staff := s.login("pak-joko", "rahasia1").Access.Token

	c.Assert(s.do(http.MethodPost, "/v1/jobs", staff, echo.Map{"title": "Arsip", "hours": 2, "quota": 1}).Code,
		qt.Equals, http.StatusCreated)

	rec := s.do(http.MethodPut, fmt.Sprintf("/v1/users/%d", id), admin,
		echo.Map{"username": "pak-joko", "name": "Joko", "role": "KEUANGAN"})
	c.Assert(rec.Code, qt.Equals, http.StatusOK, qt.Commentf("body: %s", rec.Body))

	// The token still says PENGAWAS but the account no longer is one.
	c.Assert(s.do(http.MethodPost, "/v1/jobs", staff, echo.Map{"title": "Arsip 2", "hours": 2, "quota": 1}).Code,
		qt.Equals, http.StatusForbidden)
	rec = s.do(http.MethodGet, "/v1/me", staff, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	var me struct{ Role string }
	s.decode(rec, &me)
	c.Assert(me.Role, qt.Equals, "KEUANGAN")
}

func TestDeletedAccountTokenRejected(t *testing.T) {
	c := qt.New(t)
	s := newServer(c)
	admin := s.login("admin", "rahasia-admin").Access.Token
	id := s.createUser(admin, echo.Map{"username": "budi", "password": "rahasia1", "name": "Budi", "role": "MAHASISWA", "nim": "2241720009"})
	student := s.login("budi", "rahasia1").Access.Token
	c.Assert(s.do(http.MethodGet, "/v1/jobs", student, nil).Code, qt.Equals, http.StatusOK)

	c.Assert(s.do(http.MethodDelete, fmt.Sprintf("/v1/users/%d", id), admin, nil).Code, qt.Equals, http.StatusNoContent)
	c.Assert(s.do(http.MethodGet, "/v1/jobs", student, nil).Code, qt.Equals, http.StatusUnauthorized)
}

func TestCompensationFlow(t *testing.T) {
	c := qt.New(t)
	s := newServer(c)
	admin := s.login("admin", "rahasia-admin").Access.Token
	s.createUser(admin, echo.Map{"username": "pak-joko", "password": "rahasia1", "name": "Joko", "role": "PENGAWAS"})
	studentID := s.createUser(admin, echo.Map{
		"username": "sari", "password": "rahasia1", "name": "Sari", "role": "MAHASISWA",
		"nim": "2241720002", "total_hours": 4,
	})
	pengawas := s.login("pak-joko", "rahasia1").Access.Token
	student := s.login("sari", "rahasia1").Access.Token

	rec := s.do(http.MethodPost, "/v1/jobs", pengawas, echo.Map{"title": "Arsip lab", "hours": 4, "quota": 1})
	c.Assert(rec.Code, qt.Equals, http.StatusCreated)
	var job struct{ ID uint64 }
	s.decode(rec, &job)

	rec = s.do(http.MethodPost, fmt.Sprintf("/v1/jobs/%d/apply", job.ID), student, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusCreated, qt.Commentf("body: %s", rec.Body))
	var app struct {
		ID     uint64
		Status string
	}
	s.decode(rec, &app)
	c.Assert(app.Status, qt.Equals, "PENDING")

	rec = s.do(http.MethodPost, fmt.Sprintf("/v1/jobs/%d/apply", job.ID), student, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusConflict)
	var errBody struct{ Error string }
	s.decode(rec, &errBody)
	c.Assert(errBody.Error, qt.Not(qt.Equals), "")

	statusPath := fmt.Sprintf("/v1/applications/%d/status", app.ID)
	c.Assert(s.do(http.MethodPatch, statusPath, pengawas, echo.Map{"status": "accepted"}).Code, qt.Equals, http.StatusOK)
	c.Assert(s.do(http.MethodPatch, statusPath, pengawas, echo.Map{"status": "COMPLETED"}).Code, qt.Equals, http.StatusOK)
	c.Assert(s.do(http.MethodPatch, statusPath, pengawas, echo.Map{"status": "COMPLETED"}).Code, qt.Equals, http.StatusConflict)
	c.Assert(s.do(http.MethodPatch, statusPath, pengawas, echo.Map{"status": "bogus"}).Code, qt.Equals, http.StatusBadRequest)
	c.Assert(s.do(http.MethodPatch, "/v1/applications/999/status", pengawas, echo.Map{"status": "ACCEPTED"}).Code,
		qt.Equals, http.StatusNotFound)

	rec = s.do(http.MethodGet, "/v1/me", student, nil)
	var me struct {
		TotalHours int `json:"total_hours"`
	}
	s.decode(rec, &me)
	c.Assert(me.TotalHours, qt.Equals, 0)

	rec = s.do(http.MethodGet, fmt.Sprintf("/v1/users/%d", studentID), pengawas, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusForbidden)

	rec = s.do(http.MethodPut, fmt.Sprintf("/v1/users/%d/hours", studentID), admin, echo.Map{"hours": 3})
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
	rec = s.do(http.MethodPut, fmt.Sprintf("/v1/users/%d/hours", studentID), admin, echo.Map{"hours": 3, "reason": "koreksi semester"})
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(rec.Body.String(), qt.JSONEquals, echo.Map{"user_id": studentID, "before": 0, "after": 3})

	rec = s.do(http.MethodGet, "/v1/clearances", admin, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	var list struct{ Items []struct{ UserID uint64 `json:"user_id"` } }
	s.decode(rec, &list)
	c.Assert(list.Items, qt.HasLen, 1)
	c.Assert(list.Items[0].UserID, qt.Equals, studentID)

	rec = s.do(http.MethodGet, "/metrics", "", nil)
	c.Assert(rec.Body.String(), qt.Contains, `kompen_transitions_total{entity="application",status="COMPLETED"} 1`)
}

func TestPaymentFlow(t *testing.T) {
	c := qt.New(t)
	s := newServer(c)
	admin := s.login("admin", "rahasia-admin").Access.Token
	s.createUser(admin, echo.Map{"username": "keu", "password": "rahasia1", "name": "Keu", "role": "KEUANGAN"})
	s.createUser(admin, echo.Map{"username": "andi", "password": "rahasia1", "name": "Andi", "role": "MAHASISWA",
		"nim": "2241720003", "total_hours": 5})
	keu := s.login("keu", "rahasia1").Access.Token
	student := s.login("andi", "rahasia1").Access.Token

	rec := s.do(http.MethodPost, "/v1/payments", student, echo.Map{"amount": 50000, "hours_equivalent": 3, "proof_url": "https://bukti/1.jpg"})
	c.Assert(rec.Code, qt.Equals, http.StatusCreated, qt.Commentf("body: %s", rec.Body))
	var pay struct{ ID uint64 }
	s.decode(rec, &pay)

	path := fmt.Sprintf("/v1/payments/%d/status", pay.ID)
	c.Assert(s.do(http.MethodPatch, path, student, echo.Map{"status": "APPROVED"}).Code, qt.Equals, http.StatusForbidden)
	c.Assert(s.do(http.MethodPatch, path, keu, echo.Map{"status": "APPROVED"}).Code, qt.Equals, http.StatusOK)
	c.Assert(s.do(http.MethodPatch, path, keu, echo.Map{"status": "REJECTED"}).Code, qt.Equals, http.StatusConflict)

	rec = s.do(http.MethodGet, "/v1/me", student, nil)
	var me struct {
		TotalHours int `json:"total_hours"`
	}
	s.decode(rec, &me)
	c.Assert(me.TotalHours, qt.Equals, 2)

	rec = s.do(http.MethodGet, "/v1/payments", student, nil)
	var list struct{ Items []json.RawMessage }
	s.decode(rec, &list)
	c.Assert(list.Items, qt.HasLen, 1)
}

func TestImportAndExport(t *testing.T) {
	c := qt.New(t)
	s := newServer(c)
	admin := s.login("admin", "rahasia-admin").Access.Token

	csvBody := "nim,name,prodi,kelas,hours\n" +
		"2241720010,Fajar,TI,2A,12\n" +
		"2241720011,Gita,TI,2B,abc\n" +
		"2241720010,Fajar Lagi,TI,2A,3\n"
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "mahasiswa.csv")
	c.Assert(err, qt.IsNil)
	_, err = fw.Write([]byte(csvBody))
	c.Assert(err, qt.IsNil)
	c.Assert(mw.Close(), qt.IsNil)

	req := httptest.NewRequest(http.MethodPost, "/v1/users/import", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+admin)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	c.Assert(rec.Code, qt.Equals, http.StatusOK, qt.Commentf("body: %s", rec.Body))
	var sum service.ImportSummary
	s.decode(rec, &sum)
	c.Assert(sum.Created, qt.Equals, 1)
	c.Assert(sum.Skipped, qt.Equals, 1)
	c.Assert(sum.Failed, qt.Equals, 1)
	c.Assert(sum.Errors[0], qt.Matches, "baris 3: .*")

	// Imported students log in with their NIM.
	s.login("2241720010", "2241720010")

	rec = s.do(http.MethodGet, "/v1/reports/students.csv?with_debt=true", admin, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(rec.Header().Get(echo.HeaderContentType), qt.Matches, "text/csv.*")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	c.Assert(lines, qt.DeepEquals, []string{
		"nim,username,name,prodi,kelas,total_hours",
		"2241720010,2241720010,Fajar,TI,2A,12",
	})

	rec = s.do(http.MethodGet, "/v1/reports/stats", admin, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
}

func TestSettings(t *testing.T) {
	c := qt.New(t)
	s := newServer(c)
	admin := s.login("admin", "rahasia-admin").Access.Token

	c.Assert(s.do(http.MethodPut, "/v1/settings/hour_cap", admin, echo.Map{"value": "-1"}).Code, qt.Equals, http.StatusBadRequest)
	c.Assert(s.do(http.MethodPut, "/v1/settings/unknown", admin, echo.Map{"value": "1"}).Code, qt.Equals, http.StatusBadRequest)
	c.Assert(s.do(http.MethodPut, "/v1/settings/hour_cap", admin, echo.Map{"value": "20"}).Code, qt.Equals, http.StatusOK)

	rec := s.do(http.MethodGet, "/v1/settings", admin, nil)
	c.Assert(rec.Body.String(), qt.JSONEquals, map[string]string{"hour_cap": "20"})

	rec = s.do(http.MethodPost, "/v1/users", admin, echo.Map{"username": "z", "password": "rahasia1", "name": "Z",
		"role": "MAHASISWA", "nim": "1", "total_hours": 21})
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
}
