package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type limitReq struct {
	Limit int    `query:"limit" json:"limit" default:"10" validate:"gte=1,lte=100"`
	Date  string `query:"date" json:"date" validate:"omitempty,datetime=2006-01-02"`
}

func bindQuery(t *testing.T, query string, req interface{}) interface{} {
	t.Helper()
	e := echo.New()
	r := httptest.NewRequest(http.MethodGet, "/x?"+query, nil)
	c := e.NewContext(r, httptest.NewRecorder())
	return ReadAndValidateRequest(c, req)
}

func TestReadAndValidateRequestDefaults(t *testing.T) {
	req := &limitReq{}
	if errs := bindQuery(t, "", req); errs != nil {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if req.Limit != 10 {
		t.Fatalf("limit = %d, want default 10", req.Limit)
	}
}

func TestReadAndValidateRequestReportsJSONNames(t *testing.T) {
	errs, ok := bindQuery(t, "limit=500&date=03-01-2024", &limitReq{}).([]ValidationError)
	if !ok || len(errs) != 2 {
		t.Fatalf("got %#v", errs)
	}
	byField := map[string]ValidationError{}
	for _, e := range errs {
		byField[e.Field] = e
	}
	if byField["limit"].Code != "ERR_LTE" {
		t.Fatalf("limit error = %+v", byField["limit"])
	}
	if byField["date"].Code != "ERR_DATETIME" {
		t.Fatalf("date error = %+v", byField["date"])
	}
}

func TestAppErrorResponseStatus(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := AppErrorResponse(c, NotFoundError("no item").WithField("item_id")); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	_ = AppErrorResponse(c, errTest("boom"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
