package schema

import (
	"strconv"
	"strings"
)

// Affinity represents SQLite column type affinity.
type Affinity int

const (
	AffinityText Affinity = iota + 1
	AffinityNumeric
	AffinityInteger
	AffinityReal
	AffinityBlob
)

// String returns the canonical name for an affinity.
func (a Affinity) String() string {
	switch a {
	case AffinityText:
		return "TEXT"
	case AffinityNumeric:
		return "NUMERIC"
	case AffinityInteger:
		return "INTEGER"
	case AffinityReal:
		return "REAL"
	case AffinityBlob:
		return "BLOB"
	default:
		return "UNKNOWN"
	}
}

// DetermineAffinity determines the type affinity from a declared column type.
//
// SQLite type affinity rules (from https://sqlite.org/datatype3.html):
//  1. If the type contains "INT" -> INTEGER affinity
//  2. If the type contains "CHAR", "CLOB", or "TEXT" -> TEXT affinity
//  3. If the type contains "BLOB" or no type specified -> BLOB affinity
//  4. If the type contains "REAL", "FLOA", or "DOUB" -> REAL affinity
//  5. Otherwise -> NUMERIC affinity
func DetermineAffinity(sqlType string) Affinity {
	if sqlType == "" {
		return AffinityBlob
	}

	upper := strings.ToUpper(sqlType)

	if strings.Contains(upper, "INT") {
		return AffinityInteger
	}
	if strings.Contains(upper, "CHAR") ||
		strings.Contains(upper, "CLOB") ||
		strings.Contains(upper, "TEXT") {
		return AffinityText
	}
	if strings.Contains(upper, "BLOB") {
		return AffinityBlob
	}
	if strings.Contains(upper, "REAL") ||
		strings.Contains(upper, "FLOA") ||
		strings.Contains(upper, "DOUB") {
		return AffinityReal
	}
	return AffinityNumeric
}

// StorageTypeFor maps a declared SQL type to the storage type used for values.
// BOOLEAN-like declarations have NUMERIC affinity in SQLite but are stored as
// 0/1 integers here. Other NUMERIC declarations (DECIMAL, DATE, ...) are not
// supported and yield StorageUnknown.
func StorageTypeFor(sqlType string) StorageType {
	if strings.Contains(strings.ToUpper(sqlType), "BOOL") {
		return StorageBool
	}
	switch DetermineAffinity(sqlType) {
	case AffinityText:
		return StorageText
	case AffinityInteger:
		return StorageInteger
	case AffinityReal:
		return StorageReal
	case AffinityBlob:
		return StorageBinary
	default:
		return StorageUnknown
	}
}

// DeclaredLength extracts n from a declared type such as "VARCHAR(64)" or
// "BLOB(65536)". It returns 0 when no single positive length is declared.
func DeclaredLength(sqlType string) int64 {
	open := strings.IndexByte(sqlType, '(')
	if open < 0 || !strings.HasSuffix(sqlType, ")") {
		return 0
	}
	inner := strings.TrimSpace(sqlType[open+1 : len(sqlType)-1])
	n, err := strconv.ParseInt(inner, 10, 64)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
