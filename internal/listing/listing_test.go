package listing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opexhub/internal/domain"
)

func sample() []domain.Initiative {
	return []domain.Initiative{
		{ID: "a1", InitiativeNumber: "NDS/2025/001", Title: "Energy saving in boilers", Status: domain.InitiativePending, Site: "NDS"},
		{ID: "b2", InitiativeNumber: "HSD1/2025/001", Title: "Water recycling loop", Status: domain.InitiativeInProgress, Site: "HSD1"},
		{ID: "c3", InitiativeNumber: "NDS/2025/002", Title: "Steam trap survey", Status: domain.InitiativeCompleted, Site: "NDS"},
		{ID: "d4", InitiativeNumber: "DHJ/2024/007", Title: "Compressed air leaks", Status: domain.InitiativeRejected, Site: "DHJ"},
	}
}

func ids(items []domain.Initiative) []string {
	out := make([]string, 0, len(items))
	for _, in := range items {
		out = append(out, in.ID)
	}
	return out
}

func TestFilterMatch(t *testing.T) {
	items := sample()
	cases := []struct {
		name string
		f    Filter
		want []string
	}{
		{"empty", Filter{}, []string{"a1", "b2", "c3", "d4"}},
		{"status all", Filter{Status: "All"}, []string{"a1", "b2", "c3", "d4"}},
		{"status substring", Filter{Status: "progress"}, []string{"b2"}},
		{"site exact", Filter{Site: "NDS"}, []string{"a1", "c3"}},
		{"site is not substring", Filter{Site: "HSD"}, []string{}},
		{"search title", Filter{Search: "STEAM"}, []string{"c3"}},
		{"search number", Filter{Search: "2024"}, []string{"d4"}},
		{"search id", Filter{Search: "b2"}, []string{"b2"}},
		{"combined", Filter{Site: "NDS", Status: "pending", Search: "boiler"}, []string{"a1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ids(tc.f.Apply(items)))
		})
	}
}

func TestSearchFoldsASCIIOnly(t *testing.T) {
	in := domain.Initiative{ID: "e5", Title: "ÉCONOMISER retrofit", Status: "Pending", Site: "NDS"}
	assert.False(t, Filter{Search: "economiser"}.Match(in))
	assert.True(t, Filter{Search: "Économ"}.Match(in))
	assert.True(t, Filter{Search: "RETROFIT"}.Match(in))
	assert.False(t, Filter{Search: "éco"}.Match(in))
}

func TestFilterIdempotentAndCommutative(t *testing.T) {
	items := sample()
	site := Filter{Site: "NDS"}
	status := Filter{Status: "completed"}

	once := site.Apply(items)
	assert.Equal(t, once, site.Apply(once))
	assert.Equal(t, ids(status.Apply(site.Apply(items))), ids(site.Apply(status.Apply(items))))
}

func TestPaginateReconstructsList(t *testing.T) {
	items := make([]int, 23)
	for i := range items {
		items[i] = i
	}
	var all []int
	for p := 1; ; p++ {
		page := Paginate(items, p, 10)
		all = append(all, page.Content...)
		require.Equal(t, 3, page.TotalPages)
		require.Equal(t, 23, page.TotalElements)
		assert.Equal(t, p > 1, page.HasPrevious)
		if !page.HasNext {
			assert.Len(t, page.Content, 3)
			break
		}
	}
	assert.Equal(t, items, all)
}

func TestPaginateEdges(t *testing.T) {
	empty := Paginate([]string{}, 1, 10)
	assert.Empty(t, empty.Content)
	assert.Equal(t, 0, empty.TotalPages)
	assert.False(t, empty.HasNext)
	assert.False(t, empty.HasPrevious)

	past := Paginate([]string{"x"}, 5, 10)
	assert.Empty(t, past.Content)
	assert.True(t, past.HasPrevious)

	page, size := Normalize(0, 1000)
	assert.Equal(t, 1, page)
	assert.Equal(t, MaxPageSize, size)
	_, size = Normalize(2, 0)
	assert.Equal(t, DefaultPageSize, size)
	assert.Equal(t, 20, Offset(3, 10))
}

func ExamplePaginate() {
	p := Paginate([]string{"a", "b", "c"}, 2, 2)
	fmt.Println(p.Content, p.TotalPages, p.HasNext, p.HasPrevious)
	// Output: [c] 2 false true
}
