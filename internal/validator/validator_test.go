package validator

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

type input struct {
	Name  string `json:"name" binding:"required,min=2"`
	Class string `json:"class_name" binding:"notblank"`
}

func bindBody(t *testing.T, body string) map[string]string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	var in input
	return Bind(c, &in)
}

func TestBindTranslatesFields(t *testing.T) {
	Setup()
	Setup()

	fields := bindBody(t, `{"name":"A","class_name":"   "}`)
	if fields["name"] != "name must be at least 2 characters in length" {
		t.Fatalf("name = %q", fields["name"])
	}
	if fields["class_name"] != "class_name must not be blank" {
		t.Fatalf("class_name = %q", fields["class_name"])
	}

	if fields := bindBody(t, `{"name":"Ann","class_name":"7A"}`); fields != nil {
		t.Fatalf("valid body: %v", fields)
	}
}

func TestBindSyntaxError(t *testing.T) {
	Setup()
	if fields := bindBody(t, `{"name":`); fields["detail"] == "" {
		t.Fatalf("fields = %v", fields)
	}
	if got := TranslateErrors(errors.New("boom")); got["detail"] != "boom" {
		t.Fatalf("got %v", got)
	}
}
