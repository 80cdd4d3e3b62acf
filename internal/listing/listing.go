// Package listing implements the initiative list filter and page slicing.
// The repository applies the same predicate in SQL; this package is the
// reference used for in-memory lists and tests. Text matching folds ASCII
// letters only, as SQLite's lower() does.
package listing

import (
	"strings"

	"opexhub/internal/domain"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Filter narrows a list of initiatives. Empty fields and the status "all"
// match everything.
type Filter struct {
	Status string `json:"status,omitempty"`
	Site   string `json:"site,omitempty"`
	Search string `json:"search,omitempty"`
}

// Normalized trims the fields and clears the status sentinel "all".
func (f Filter) Normalized() Filter {
	f.Status = strings.TrimSpace(f.Status)
	if strings.EqualFold(f.Status, "all") {
		f.Status = ""
	}
	f.Site = strings.TrimSpace(f.Site)
	if strings.EqualFold(f.Site, "all") {
		f.Site = ""
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

// Match reports whether the initiative passes every active criterion.
func (f Filter) Match(in domain.Initiative) bool {
	f = f.Normalized()
	if f.Status != "" && !containsFold(in.Status, f.Status) {
		return false
	}
	if f.Site != "" && in.Site != f.Site {
		return false
	}
	if f.Search != "" &&
		!containsFold(in.Title, f.Search) &&
		!containsFold(in.InitiativeNumber, f.Search) &&
		!containsFold(in.ID, f.Search) {
		return false
	}
	return true
}

// Apply keeps the initiatives that match, preserving order.
func (f Filter) Apply(items []domain.Initiative) []domain.Initiative {
	out := make([]domain.Initiative, 0, len(items))
	for _, in := range items {
		if f.Match(in) {
			out = append(out, in)
		}
	}
	return out
}

func containsFold(s, sub string) bool {
	return strings.Contains(asciiLower(s), asciiLower(sub))
}

func asciiLower(s string) string {
	return strings.Map(func(r rune) rune {
		if 'A' <= r && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

// PageInfo describes one page of a total result set. Pages are 1-based.
type PageInfo struct {
	Page          int  `json:"page"`
	Size          int  `json:"size"`
	TotalElements int  `json:"total_elements"`
	TotalPages    int  `json:"total_pages"`
	HasNext       bool `json:"has_next"`
	HasPrevious   bool `json:"has_previous"`
}

// Page is a page of content plus its position.
type Page[T any] struct {
	Content []T `json:"content"`
	PageInfo
}

// Normalize clamps page to >= 1 and size to [1, MaxPageSize], using
// DefaultPageSize when size is zero or negative.
func Normalize(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// Info computes the page metadata for total elements.
func Info(page, size, total int) PageInfo {
	page, size = Normalize(page, size)
	pages := (total + size - 1) / size
	return PageInfo{
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    pages,
		HasNext:       page < pages,
		HasPrevious:   page > 1,
	}
}

// Offset is the zero-based index of the first element on page.
func Offset(page, size int) int {
	page, size = Normalize(page, size)
	return (page - 1) * size
}

// Paginate slices items into the requested page. A page past the end is
// empty but still reports the totals.
func Paginate[T any](items []T, page, size int) Page[T] {
	info := Info(page, size, len(items))
	start := Offset(info.Page, info.Size)
	if start > len(items) {
		start = len(items)
	}
	end := start + info.Size
	if end > len(items) {
		end = len(items)
	}
	content := make([]T, end-start)
	copy(content, items[start:end])
	return Page[T]{Content: content, PageInfo: info}
}
