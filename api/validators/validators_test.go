package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/psecars/merch-backend/pkg/errors"
)

type addItemBody struct {
	ProductID int64  `json:"productId" validate:"required,gt=0"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
}

func TestDecodeJSONBodyEmpty(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(""))
	var body addItemBody
	err := DecodeJSONBody(httptest.NewRecorder(), req, &body)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if msg := pkgerrors.As(err).Message(); msg != "request body is required" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestDecodeJSONBodyUnknownField(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"productId":1,"quantity":1,"color":"red"}`))
	var body addItemBody
	if err := DecodeJSONBody(httptest.NewRecorder(), req, &body); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyFieldMessages(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"productId":0,"quantity":0,"email":"nope"}`))
	var body addItemBody
	err := DecodeJSONBody(httptest.NewRecorder(), req, &body)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("unexpected details %T", typed.Details())
	}
	if details["productId"] != "is required" {
		t.Fatalf("productId: %q", details["productId"])
	}
	if details["quantity"] != "must be at least 1" {
		t.Fatalf("quantity: %q", details["quantity"])
	}
	if details["email"] != "must be a valid email" {
		t.Fatalf("email: %q", details["email"])
	}
}

func TestDecodeJSONBodyValid(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"productId":7,"quantity":2}`))
	var body addItemBody
	if err := DecodeJSONBody(httptest.NewRecorder(), req, &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.ProductID != 7 || body.Quantity != 2 {
		t.Fatalf("unexpected body %+v", body)
	}
}

type orderBody struct {
	Price decimal.Decimal `json:"price" validate:"money"`
	Lines []struct {
		Quantity int `json:"quantity" validate:"gte=1"`
	} `json:"lines" validate:"required,min=1,dive"`
}

func TestDecodeJSONBodyNestedPathsAndMoney(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"price":"9.999","lines":[{"quantity":2},{"quantity":0}]}`))
	var body orderBody
	err := DecodeJSONBody(httptest.NewRecorder(), req, &body)
	details, _ := pkgerrors.As(err).Details().(map[string]string)
	if details["lines[1].quantity"] != "must be at least 1" {
		t.Fatalf("nested path missing: %v", details)
	}
	if details["price"] == "" {
		t.Fatalf("three decimal places should fail money: %v", details)
	}

	req = httptest.NewRequest("POST", "/", strings.NewReader(`{"price":"12.50","lines":[{"quantity":1}]}`))
	if err := DecodeJSONBody(httptest.NewRecorder(), req, &body); err != nil {
		t.Fatalf("valid body rejected: %v", err)
	}
	if !body.Price.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("price = %s", body.Price)
	}
}

func TestDecodeJSONBodyRejectsEmptySlice(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"price":"1.00","lines":[]}`))
	var body orderBody
	err := DecodeJSONBody(httptest.NewRecorder(), req, &body)
	details, _ := pkgerrors.As(err).Details().(map[string]string)
	if details["lines"] != "must contain at least 1 item(s)" {
		t.Fatalf("lines: %v", details)
	}
}

func TestDecodeJSONBodyRejectsTrailingData(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"productId":1,"quantity":1} {"productId":2,"quantity":1}`))
	var body addItemBody
	if err := DecodeJSONBody(httptest.NewRecorder(), req, &body); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyTooLarge(t *testing.T) {
	huge := `{"productId":1,"quantity":1,"email":"` + strings.Repeat("a", int(MaxBodyBytes)) + `@x.io"}`
	req := httptest.NewRequest("POST", "/", strings.NewReader(huge))
	var body addItemBody
	err := DecodeJSONBody(httptest.NewRecorder(), req, &body)
	if msg := pkgerrors.As(err).Message(); msg != "request body too large" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/?limit=50&bad=x&big=500", nil)
	if v, err := ParseQueryInt(req, "limit", 25, 1, 100); err != nil || v != 50 {
		t.Fatalf("limit: %d %v", v, err)
	}
	if v, err := ParseQueryInt(req, "missing", 25, 1, 100); err != nil || v != 25 {
		t.Fatalf("default: %d %v", v, err)
	}
	if _, err := ParseQueryInt(req, "bad", 25, 1, 100); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for non numeric, got %v", err)
	}
	if _, err := ParseQueryInt(req, "big", 25, 1, 100); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for range, got %v", err)
	}
}

func TestParseQueryString(t *testing.T) {
	req := httptest.NewRequest("GET", "/?status=%20PENDING%20&empty=", nil)
	if got := ParseQueryString(req, "status"); got == nil || *got != "PENDING" {
		t.Fatalf("unexpected status %v", got)
	}
	if got := ParseQueryString(req, "empty"); got != nil {
		t.Fatalf("expected nil, got %q", *got)
	}
}

func TestParseQueryTypedValues(t *testing.T) {
	req := httptest.NewRequest("GET", "/?categoryId=4&availableOnly=true&minPrice=10.5&bad=-3&flag=maybe", nil)

	id, err := ParseQueryID(req, "categoryId")
	if err != nil || id == nil || *id != 4 {
		t.Fatalf("categoryId: %v %v", id, err)
	}
	if id, err := ParseQueryID(req, "missing"); id != nil || err != nil {
		t.Fatalf("absent id: %v %v", id, err)
	}
	if _, err := ParseQueryID(req, "bad"); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("negative id accepted: %v", err)
	}

	if only, err := ParseQueryBool(req, "availableOnly"); err != nil || !only {
		t.Fatalf("availableOnly: %v %v", only, err)
	}
	if _, err := ParseQueryBool(req, "flag"); err == nil {
		t.Fatal("flag=maybe accepted")
	}

	price, err := ParseQueryMoney(req, "minPrice")
	if err != nil || price == nil || price.String() != "10.5" {
		t.Fatalf("minPrice: %v %v", price, err)
	}
	if _, err := ParseQueryMoney(req, "bad"); err == nil {
		t.Fatal("negative price accepted")
	}
}
