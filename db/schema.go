package db

import (
	"fmt"
	"slices"
	"strings"

	"hermannm.dev/enumnames"
)

// TableScope identifies one of the dataset's tables. Every column name used in generated SQL is
// checked against the allow-list of its scope.
type TableScope int8

const (
	ScopeEvents TableScope = iota + 1
	ScopeGKG
	ScopeMentions
)

var tableScopeNames = enumnames.NewMap(map[TableScope]string{
	ScopeEvents:   "events",
	ScopeGKG:      "gkg",
	ScopeMentions: "mentions",
})

func (scope TableScope) IsValid() bool {
	_, ok := tableScopeNames.GetName(scope)
	return ok
}

func (scope TableScope) String() string {
	return tableScopeNames.GetNameOrFallback(scope, "INVALID_TABLE_SCOPE")
}

func (scope TableScope) MarshalJSON() ([]byte, error) {
	return tableScopeNames.MarshalToNameJSON(scope)
}

func (scope *TableScope) UnmarshalJSON(bytes []byte) error {
	return tableScopeNames.UnmarshalFromNameJSON(bytes, scope)
}

// ParseTableScope maps a scope name ("events", "gkg", "mentions") to its TableScope.
func ParseTableScope(name string) (TableScope, error) {
	for _, scope := range []TableScope{ScopeEvents, ScopeGKG, ScopeMentions} {
		if scope.String() == name {
			return scope, nil
		}
	}
	return 0, &IdentifierError{Kind: "table", Name: name}
}

// Column is an allow-listed column of a table scope. The zero value is not a valid column: the only
// way to obtain one is through LookupColumn and its variants, so code writing a Column into SQL
// never sees a name that did not pass the allow-list.
type Column struct {
	name     string
	dataType DataType
}

func (column Column) Name() string {
	return column.name
}

func (column Column) DataType() DataType {
	return column.dataType
}

func (column Column) IsZero() bool {
	return column.name == ""
}

// TagField is a multi-valued text column, whose entries are joined by Delimiter. In the GKG v2
// fields, each entry is suffixed by ",<character offset>", which is removed when StripOffset is set.
type TagField struct {
	Column      Column
	Delimiter   string
	StripOffset bool
}

// LookupColumn validates the given column name against the allow-list for the scope.
func LookupColumn(scope TableScope, name string) (Column, error) {
	columns, ok := scopeColumns[scope]
	if !ok {
		return Column{}, &IdentifierError{Kind: "table", Name: scope.String()}
	}

	dataType, ok := columns[name]
	if !ok {
		return Column{}, &IdentifierError{Kind: "column", Scope: scope.String(), Name: name}
	}

	return Column{name: name, dataType: dataType}, nil
}

// LookupNumericColumn is LookupColumn for columns that are aggregated or ranked, which must be
// integers or floats. field names the request field, for the error message.
func LookupNumericColumn(scope TableScope, name string, field string) (Column, error) {
	column, err := LookupColumn(scope, name)
	if err != nil {
		return Column{}, err
	}

	if !column.dataType.IsNumeric() {
		return Column{}, &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("column '%s' is %v, expected a numeric column", name, column.dataType),
		}
	}

	return column, nil
}

// LookupTagField validates that the given column is an allow-listed multi-valued field.
func LookupTagField(scope TableScope, name string) (TagField, error) {
	column, err := LookupColumn(scope, name)
	if err != nil {
		return TagField{}, err
	}

	tagField, ok := tagFields[scope][name]
	if !ok {
		return TagField{}, &IdentifierError{Kind: "tag field", Scope: scope.String(), Name: name}
	}

	tagField.Column = column
	return tagField, nil
}

// Table is a configured warehouse table for a scope. Reference is the fully qualified name in the
// warehouse (e.g. "gdelt-bq.gdeltv2.events_partitioned"), and TimeColumn is the timestamp column
// that partitions the table, which every generated query bounds.
type Table struct {
	Scope      TableScope
	Reference  string
	TimeColumn Column
}

// NewTable validates the configured table reference and time column.
func NewTable(scope TableScope, reference string, timeColumn string) (Table, error) {
	if err := validateTableReference(reference); err != nil {
		return Table{}, err
	}

	column, err := LookupColumn(scope, timeColumn)
	if err != nil {
		return Table{}, err
	}
	if column.dataType != DataTypeTimestamp {
		return Table{}, &ValidationError{
			Field:   "timeColumn",
			Message: fmt.Sprintf("column '%s' is %v, expected TIMESTAMP", timeColumn, column.dataType),
		}
	}

	return Table{Scope: scope, Reference: reference, TimeColumn: column}, nil
}

// Table references come from configuration rather than requests, but are still restricted to the
// characters that can appear in project, dataset and table names.
func validateTableReference(reference string) error {
	if reference == "" {
		return &IdentifierError{Kind: "table", Name: reference}
	}

	for _, char := range reference {
		switch {
		case char >= 'a' && char <= 'z', char >= 'A' && char <= 'Z', char >= '0' && char <= '9':
		case strings.ContainsRune("_-.", char):
		default:
			return &IdentifierError{Kind: "table", Name: reference}
		}
	}

	return nil
}

const partitionTimeColumn = "_PARTITIONTIME"

// DefaultTimeColumn is the partition pseudo-column of the public dataset's partitioned tables.
const DefaultTimeColumn = partitionTimeColumn

var scopeColumns = map[TableScope]map[string]DataType{
	ScopeEvents:   eventColumns(),
	ScopeGKG:      gkgColumns(),
	ScopeMentions: mentionColumns(),
}

func eventColumns() map[string]DataType {
	columns := map[string]DataType{
		partitionTimeColumn: DataTypeTimestamp,
		"GLOBALEVENTID":     DataTypeInt,
		"SQLDATE":           DataTypeInt,
		"MonthYear":         DataTypeInt,
		"Year":              DataTypeInt,
		"FractionDate":      DataTypeFloat,
		"IsRootEvent":       DataTypeInt,
		"EventCode":         DataTypeText,
		"EventBaseCode":     DataTypeText,
		"EventRootCode":     DataTypeText,
		"QuadClass":         DataTypeInt,
		"GoldsteinScale":    DataTypeFloat,
		"NumMentions":       DataTypeInt,
		"NumSources":        DataTypeInt,
		"NumArticles":       DataTypeInt,
		"AvgTone":           DataTypeFloat,
		"DATEADDED":         DataTypeInt,
		"SOURCEURL":         DataTypeText,
	}

	for _, actor := range []string{"Actor1", "Actor2"} {
		for _, suffix := range []string{
			"Code", "Name", "CountryCode", "KnownGroupCode", "EthnicCode",
			"Religion1Code", "Religion2Code", "Type1Code", "Type2Code", "Type3Code",
		} {
			columns[actor+suffix] = DataTypeText
		}
	}

	for _, geo := range []string{"Actor1Geo", "Actor2Geo", "ActionGeo"} {
		columns[geo+"_Type"] = DataTypeInt
		columns[geo+"_FullName"] = DataTypeText
		columns[geo+"_CountryCode"] = DataTypeText
		columns[geo+"_ADM1Code"] = DataTypeText
		columns[geo+"_ADM2Code"] = DataTypeText
		columns[geo+"_Lat"] = DataTypeFloat
		columns[geo+"_Long"] = DataTypeFloat
		columns[geo+"_FeatureID"] = DataTypeText
	}

	return columns
}

func gkgColumns() map[string]DataType {
	columns := map[string]DataType{
		partitionTimeColumn:          DataTypeTimestamp,
		"DATE":                       DataTypeInt,
		"SourceCollectionIdentifier": DataTypeInt,
	}

	for _, name := range []string{
		"GKGRECORDID", "SourceCommonName", "DocumentIdentifier", "Counts", "V2Counts", "Themes",
		"V2Themes", "Locations", "V2Locations", "Persons", "V2Persons", "Organizations",
		"V2Organizations", "V2Tone", "Dates", "GCAM", "SharingImage", "RelatedImages",
		"SocialImageEmbeds", "SocialVideoEmbeds", "Quotations", "AllNames", "Amounts",
		"TranslationInfo", "Extras",
	} {
		columns[name] = DataTypeText
	}

	return columns
}

func mentionColumns() map[string]DataType {
	return map[string]DataType{
		partitionTimeColumn:         DataTypeTimestamp,
		"GLOBALEVENTID":             DataTypeInt,
		"EventTimeDate":             DataTypeInt,
		"MentionTimeDate":           DataTypeInt,
		"MentionType":               DataTypeInt,
		"MentionSourceName":         DataTypeText,
		"MentionIdentifier":         DataTypeText,
		"SentenceID":                DataTypeInt,
		"Actor1CharOffset":          DataTypeInt,
		"Actor2CharOffset":          DataTypeInt,
		"ActionCharOffset":          DataTypeInt,
		"InRawText":                 DataTypeInt,
		"Confidence":                DataTypeInt,
		"MentionDocLen":             DataTypeInt,
		"MentionDocTone":            DataTypeFloat,
		"MentionDocTranslationInfo": DataTypeText,
		"Extras":                    DataTypeText,
	}
}

var tagFields = map[TableScope]map[string]TagField{
	ScopeGKG: {
		"Themes":          {Delimiter: ";"},
		"V2Themes":        {Delimiter: ";", StripOffset: true},
		"Persons":         {Delimiter: ";"},
		"V2Persons":       {Delimiter: ";", StripOffset: true},
		"Organizations":   {Delimiter: ";"},
		"V2Organizations": {Delimiter: ";", StripOffset: true},
		"AllNames":        {Delimiter: ";", StripOffset: true},
		"Locations":       {Delimiter: ";"},
		"V2Locations":     {Delimiter: ";"},
	},
	ScopeEvents: {
		"EventCode":     {Delimiter: ";"},
		"EventRootCode": {Delimiter: ";"},
	},
	ScopeMentions: {
		"MentionSourceName": {Delimiter: ";"},
	},
}

// VerifyColumns checks the columns a warehouse reports for a table against the allow-list of the
// table's scope. It fails if the time column is absent or not a timestamp, and otherwise returns
// the allow-listed columns that the table lacks or has with another type, sorted by name. Queries
// on those columns pass validation but fail in the warehouse.
//
// A column whose warehouse type has no DataType equivalent is passed with the zero DataType.
func VerifyColumns(table Table, warehouseColumns map[string]DataType) (mismatched []string, err error) {
	timeColumn := table.TimeColumn.Name()
	dataType, ok := warehouseColumns[timeColumn]
	if !ok {
		return nil, fmt.Errorf("time column '%s' not found in table '%s'", timeColumn, table.Reference)
	}
	if dataType != DataTypeTimestamp {
		return nil, fmt.Errorf(
			"time column '%s' in table '%s' is %v, expected TIMESTAMP",
			timeColumn,
			table.Reference,
			dataType,
		)
	}

	for name, expected := range scopeColumns[table.Scope] {
		actual, ok := warehouseColumns[name]
		switch {
		case !ok:
			mismatched = append(mismatched, name+" (missing)")
		case actual != expected:
			mismatched = append(mismatched, fmt.Sprintf("%s (expected %v, got %v)", name, expected, actual))
		}
	}

	slices.Sort(mismatched)
	return mismatched, nil
}
