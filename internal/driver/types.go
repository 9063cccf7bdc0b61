// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package driver

import (
	"strings"
)

// TypeKind is the scalar family of a column type.
type TypeKind int

const (
	KindOther TypeKind = iota
	KindNumeric
	KindString
	KindTemporal
	KindBool
	KindBinary
)

func (k TypeKind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindString:
		return "string"
	case KindTemporal:
		return "temporal"
	case KindBool:
		return "bool"
	case KindBinary:
		return "binary"
	default:
		return "other"
	}
}

type typeInfo struct {
	kind TypeKind
	blob bool
}

var mysqlTypes = map[string]typeInfo{
	"TINYINT":            {kind: KindNumeric},
	"SMALLINT":           {kind: KindNumeric},
	"MEDIUMINT":          {kind: KindNumeric},
	"INT":                {kind: KindNumeric},
	"INTEGER":            {kind: KindNumeric},
	"BIGINT":             {kind: KindNumeric},
	"DECIMAL":            {kind: KindNumeric},
	"NUMERIC":            {kind: KindNumeric},
	"FLOAT":              {kind: KindNumeric},
	"DOUBLE":             {kind: KindNumeric},
	"YEAR":               {kind: KindNumeric},
	"BIT":                {kind: KindNumeric},
	"UNSIGNED TINYINT":   {kind: KindNumeric},
	"UNSIGNED SMALLINT":  {kind: KindNumeric},
	"UNSIGNED MEDIUMINT": {kind: KindNumeric},
	"UNSIGNED INT":       {kind: KindNumeric},
	"UNSIGNED BIGINT":    {kind: KindNumeric},
	"CHAR":               {kind: KindString},
	"VARCHAR":            {kind: KindString},
	"ENUM":               {kind: KindString},
	"SET":                {kind: KindString},
	"JSON":               {kind: KindString},
	"TINYTEXT":           {kind: KindString, blob: true},
	"TEXT":               {kind: KindString, blob: true},
	"MEDIUMTEXT":         {kind: KindString, blob: true},
	"LONGTEXT":           {kind: KindString, blob: true},
	"DATE":               {kind: KindTemporal},
	"TIME":               {kind: KindTemporal},
	"DATETIME":           {kind: KindTemporal},
	"TIMESTAMP":          {kind: KindTemporal},
	"BINARY":             {kind: KindBinary},
	"VARBINARY":          {kind: KindBinary},
	"TINYBLOB":           {kind: KindBinary, blob: true},
	"BLOB":               {kind: KindBinary, blob: true},
	"MEDIUMBLOB":         {kind: KindBinary, blob: true},
	"LONGBLOB":           {kind: KindBinary, blob: true},
	"GEOMETRY":           {kind: KindBinary, blob: true},
}

var postgresTypes = map[string]typeInfo{
	"int2":        {kind: KindNumeric},
	"int4":        {kind: KindNumeric},
	"int8":        {kind: KindNumeric},
	"numeric":     {kind: KindNumeric},
	"float4":      {kind: KindNumeric},
	"float8":      {kind: KindNumeric},
	"oid":         {kind: KindNumeric},
	"bool":        {kind: KindBool},
	"text":        {kind: KindString},
	"varchar":     {kind: KindString},
	"bpchar":      {kind: KindString},
	"name":        {kind: KindString},
	"uuid":        {kind: KindString},
	"json":        {kind: KindString},
	"jsonb":       {kind: KindString},
	"xml":         {kind: KindString},
	"date":        {kind: KindTemporal},
	"time":        {kind: KindTemporal},
	"timetz":      {kind: KindTemporal},
	"timestamp":   {kind: KindTemporal},
	"timestamptz": {kind: KindTemporal},
	"interval":    {kind: KindTemporal},
	"bytea":       {kind: KindBinary, blob: true},
}

// NewColumn builds a column description, classifying typeName with the dialect's type table.
func (d *Dialect) NewColumn(name, table, typeName string) Column {
	info := d.lookupType(typeName)
	return Column{
		Name:     name,
		Table:    table,
		TypeName: typeName,
		Kind:     info.kind,
		Quoted:   info.kind != KindNumeric,
		Blob:     info.blob,
	}
}

func (d *Dialect) lookupType(typeName string) typeInfo {
	if d.types == nil {
		return typeInfo{kind: KindOther}
	}
	key := typeName
	if d.upperTypes {
		key = strings.ToUpper(typeName)
	}
	if info, ok := d.types[key]; ok {
		return info
	}
	// array and domain types fall back to quoted strings
	return typeInfo{kind: KindString}
}
