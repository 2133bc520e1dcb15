package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginationDefaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/report/system", nil)
	page, pageSize := pagination(r)
	assert.Equal(t, 1, page)
	assert.Equal(t, 50, pageSize)
}

func TestPaginationHonorsQueryParams(t *testing.T) {
	r := httptest.NewRequest("GET", "/report/system?page=3&page_size=25", nil)
	page, pageSize := pagination(r)
	assert.Equal(t, 3, page)
	assert.Equal(t, 25, pageSize)
}

func TestPaginationRejectsNonPositiveAndOversizedValues(t *testing.T) {
	r := httptest.NewRequest("GET", "/report/system?page=0&page_size=5000", nil)
	page, pageSize := pagination(r)
	assert.Equal(t, 1, page, "page=0 falls back to the default")
	assert.Equal(t, 50, pageSize, "page_size above the 500 cap falls back to the default")
}

func TestPaginationIgnoresGarbageValues(t *testing.T) {
	r := httptest.NewRequest("GET", "/report/system?page=abc&page_size=xyz", nil)
	page, pageSize := pagination(r)
	assert.Equal(t, 1, page)
	assert.Equal(t, 50, pageSize)
}
