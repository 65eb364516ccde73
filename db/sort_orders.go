package db

import "hermannm.dev/enumnames"

type SortOrder int8

const (
	SortOrderAscending SortOrder = iota + 1
	SortOrderDescending
)

var sortOrderMap = enumnames.NewMap(map[SortOrder]string{
	SortOrderAscending:  "ASCENDING",
	SortOrderDescending: "DESCENDING",
})

func (sortOrder SortOrder) IsValid() bool {
	_, ok := sortOrderMap.GetName(sortOrder)
	return ok
}

func (sortOrder SortOrder) String() string {
	return sortOrderMap.GetNameOrFallback(sortOrder, "INVALID_SORT_ORDER")
}

func (sortOrder SortOrder) MarshalJSON() ([]byte, error) {
	return sortOrderMap.MarshalToNameJSON(sortOrder)
}

func (sortOrder *SortOrder) UnmarshalJSON(bytes []byte) error {
	return sortOrderMap.UnmarshalFromNameJSON(bytes, sortOrder)
}

// Keyword returns the SQL keyword for the sort order. Both supported warehouses use the same one.
func (sortOrder SortOrder) Keyword() string {
	if sortOrder == SortOrderAscending {
		return "ASC"
	}
	return "DESC"
}
