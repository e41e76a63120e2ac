package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	// MaxPage keeps (page-1)*page_size far from int overflow.
	MaxPage = 1_000_000
)

var (
	ErrInvalidPage = errors.New("invalid page")
	ErrInvalidSort = errors.New("invalid sort")
)

type Params struct {
	Page     int
	PageSize int
	Sort     string
	Desc     bool
}

func (p Params) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	page := min(p.Page, MaxPage)
	return (page - 1) * min(p.Limit(), MaxPageSize)
}

func (p Params) Limit() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	return p.PageSize
}

// Parse reads page, page_size and sort from query values. sort is a field
// name, optionally prefixed with "-" for descending order, and must be one
// of allowed. defaultSort uses the same syntax.
func Parse(values url.Values, allowed []string, defaultSort string) (Params, error) {
	params := Params{Page: 1, PageSize: DefaultPageSize}

	if raw := strings.TrimSpace(values.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 || page > MaxPage {
			return Params{}, fmt.Errorf("%w: page must be between 1 and %d", ErrInvalidPage, MaxPage)
		}
		params.Page = page
	}
	if raw := strings.TrimSpace(values.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 || size > MaxPageSize {
			return Params{}, fmt.Errorf("%w: page_size must be between 1 and %d", ErrInvalidPage, MaxPageSize)
		}
		params.PageSize = size
	}

	sort := strings.TrimSpace(values.Get("sort"))
	if sort == "" {
		sort = defaultSort
	}
	if sort != "" {
		desc := strings.HasPrefix(sort, "-")
		field := strings.TrimPrefix(sort, "-")
		if !contains(allowed, field) {
			return Params{}, fmt.Errorf("%w: %q is not sortable", ErrInvalidSort, field)
		}
		params.Sort = field
		params.Desc = desc
	}
	return params, nil
}

func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

type Result[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func NewResult[T any](items []T, params Params, total int) Result[T] {
	if items == nil {
		items = []T{}
	}
	return Result[T]{
		Items:      items,
		Page:       params.Page,
		PageSize:   params.Limit(),
		Total:      total,
		TotalPages: TotalPages(total, params.Limit()),
	}
}

func contains(values []string, value string) bool {
	for _, item := range values {
		if item == value {
			return true
		}
	}
	return false
}
