package partition

import (
	"context"
	"fmt"
	"sort"

	"github.com/usaschooldata/schooldata/internal/storage"
	"github.com/usaschooldata/schooldata/pkg/types"
)

// DiscoverYears lists the membership tree in object storage and returns the
// distinct school years present, most recent first.
func DiscoverYears(ctx context.Context, store storage.ObjectStorage) ([]types.SchoolYear, error) {
	keys, err := store.ListObjects(ctx, MembershipRoot+"/")
	if err != nil {
		return nil, fmt.Errorf("partition: list %s: %w", MembershipRoot, err)
	}

	seen := make(map[types.SchoolYear]struct{})
	for _, k := range keys {
		y := YearOfKey(k)
		if y.Valid() {
			seen[y] = struct{}{}
		}
	}

	years := make([]types.SchoolYear, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Slice(years, func(i, j int) bool { return years[i] > years[j] })
	return years, nil
}
