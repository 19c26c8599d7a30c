package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestParse(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name      string
		query     string
		wantPage  int
		wantLimit int
	}{
		{"defaults", "", DefaultPage, DefaultLimit},
		{"explicit", "?page=3&limit=10", 3, 10},
		{"negative page", "?page=-2", DefaultPage, DefaultLimit},
		{"limit capped", "?limit=1000", DefaultPage, MaxLimit},
		{"garbage", "?page=x&limit=y", DefaultPage, DefaultLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest("GET", "/items"+tt.query, nil)

			p := Parse(c)
			if p.Page != tt.wantPage || p.Limit != tt.wantLimit {
				t.Errorf("Parse() = page %d limit %d, want %d %d", p.Page, p.Limit, tt.wantPage, tt.wantLimit)
			}
			if p.Offset != (p.Page-1)*p.Limit {
				t.Errorf("Offset = %d, want %d", p.Offset, (p.Page-1)*p.Limit)
			}
		})
	}
}

func TestWrapTotalPages(t *testing.T) {
	p := Params{Page: 2, Limit: 20}

	cases := map[int64]int{0: 0, 1: 1, 20: 1, 21: 2, 100: 5}
	for total, want := range cases {
		if got := p.Wrap([]string{}, total).TotalPages; got != want {
			t.Errorf("Wrap(total=%d).TotalPages = %d, want %d", total, got, want)
		}
	}
}
