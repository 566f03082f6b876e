package pagination

import "testing"

func TestNormalizeClampsValues(t *testing.T) {
	p := Pagination{Page: -3, PageSize: 1000}.Normalize()
	if p.Page != 1 || p.PageSize != MaxPageSize {
		t.Fatalf("unexpected normalized pagination %+v", p)
	}
	if got := (Pagination{}).Limit(); got != DefaultPageSize {
		t.Fatalf("expected default size %d, got %d", DefaultPageSize, got)
	}
}

func TestBuildPageInfo(t *testing.T) {
	cases := []struct {
		name    string
		p       Pagination
		total   int64
		pages   int
		hasMore bool
		offset  int
	}{
		{name: "empty", p: Pagination{Page: 1, PageSize: 10}, total: 0, pages: 0, hasMore: false, offset: 0},
		{name: "first of three", p: Pagination{Page: 1, PageSize: 10}, total: 21, pages: 3, hasMore: true, offset: 0},
		{name: "last page", p: Pagination{Page: 3, PageSize: 10}, total: 21, pages: 3, hasMore: false, offset: 20},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := BuildPageInfo(tc.p, tc.total)
			if info.TotalPages != tc.pages {
				t.Fatalf("expected %d pages, got %d", tc.pages, info.TotalPages)
			}
			if info.HasMore != tc.hasMore {
				t.Fatalf("expected has_more %v, got %v", tc.hasMore, info.HasMore)
			}
			if got := tc.p.Offset(); got != tc.offset {
				t.Fatalf("expected offset %d, got %d", tc.offset, got)
			}
		})
	}
}
