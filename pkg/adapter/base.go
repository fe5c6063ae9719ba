package adapter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/redbco/redb-persist/pkg/dbcapabilities"
	"github.com/redbco/redb-persist/pkg/shape"
)

// DefaultVarcharLength is used for string columns without a max length.
const DefaultVarcharLength = 255

// sqlReserved holds words reserved by the SQL standard and by all supported
// engines alike. Dialects add their own.
var sqlReserved = []string{
	"ALL", "ALTER", "AND", "ANY", "AS", "ASC", "BEGIN", "BETWEEN", "BY", "CASE",
	"CAST", "CHECK", "COLUMN", "COMMIT", "CONSTRAINT", "CREATE", "CROSS", "CURRENT",
	"DATE", "DEFAULT", "DELETE", "DESC", "DISTINCT", "DROP", "ELSE", "END", "EXISTS",
	"FALSE", "FETCH", "FOR", "FOREIGN", "FROM", "FULL", "FUNCTION", "GRANT", "GROUP",
	"HAVING", "IN", "INDEX", "INNER", "INSERT", "INTERVAL", "INTO", "IS", "JOIN",
	"KEY", "LEFT", "LIKE", "LIMIT", "NOT", "NULL", "OF", "OFFSET", "ON", "OR",
	"ORDER", "OUTER", "PRIMARY", "PROCEDURE", "REFERENCES", "RETURN", "REVOKE",
	"RIGHT", "ROLLBACK", "ROW", "ROWS", "SELECT", "SET", "SOME", "TABLE", "THEN",
	"TIME", "TIMESTAMP", "TO", "TRIGGER", "TRUE", "UNION", "UNIQUE", "UPDATE",
	"USER", "VALUES", "VIEW", "WHEN", "WHERE", "WITH",
}

// Base implements Dialect with ANSI defaults. Engine dialects embed it and
// override what differs.
type Base struct {
	id       dbcapabilities.DatabaseID
	features Features
	reserved map[string]struct{}
}

// NewBase creates a Base for an engine with its features and extra
// reserved words.
func NewBase(id dbcapabilities.DatabaseID, features Features, reserved ...string) Base {
	words := make(map[string]struct{}, len(sqlReserved)+len(reserved))
	for _, w := range sqlReserved {
		words[w] = struct{}{}
	}
	for _, w := range reserved {
		words[strings.ToUpper(w)] = struct{}{}
	}
	if features.MaxInValues <= 0 {
		features.MaxInValues = 1000
	}
	return Base{id: id, features: features, reserved: words}
}

func (b Base) ID() dbcapabilities.DatabaseID { return b.id }

func (b Base) DriverName() string {
	if c, ok := dbcapabilities.Get(b.id); ok {
		return c.Driver
	}
	return string(b.id)
}

func (b Base) DSN(*dbcapabilities.ConnectionDetails) (string, error) {
	return "", NewUnsupportedOperationError(b.id, "dsn", "no driver configured")
}

func (b Base) Features() Features { return b.features }

func (b Base) Placeholder(int) string { return "?" }

func (b Base) MaxNameLength() int { return b.features.MaxNameLength }

func (b Base) IsReserved(word string) bool {
	_, ok := b.reserved[strings.ToUpper(word)]
	return ok
}

func (b Base) SupportsClob() bool { return b.features.Clob }

func (b Base) SupportsBlob() bool { return b.features.Blob }

func (b Base) ColumnType(kind shape.Kind, maxLength int, large bool) string {
	switch kind {
	case shape.Bool:
		return "BOOLEAN"
	case shape.Int8, shape.Int16:
		return "SMALLINT"
	case shape.Int32:
		return "INTEGER"
	case shape.Int64, shape.Reference, shape.Array:
		return "BIGINT"
	case shape.Float32:
		return "REAL"
	case shape.Float64:
		return "DOUBLE PRECISION"
	case shape.String, shape.Enum:
		if large && b.features.Clob {
			return "CLOB"
		}
		return varchar("VARCHAR", maxLength)
	case shape.Time:
		return "TIMESTAMP"
	case shape.Bytes:
		if large && b.features.Blob {
			return "BLOB"
		}
		return varchar("VARBINARY", maxLength)
	}
	return ""
}

func varchar(keyword string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultVarcharLength
	}
	return keyword + "(" + strconv.Itoa(maxLength) + ")"
}

func (b Base) IDColumn(generated bool) string {
	if generated {
		return "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
	}
	return "BIGINT PRIMARY KEY"
}

func (b Base) CreateTable(table string, columns []ColumnDef) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = c.Name + " " + c.Type
	}
	return "CREATE TABLE " + table + " (" + strings.Join(defs, ", ") + ")"
}

func (b Base) AddColumn(table string, column ColumnDef) string {
	return "ALTER TABLE " + table + " ADD COLUMN " + column.Name + " " + column.Type
}

func (b Base) DropColumn(table, column string) string {
	return "ALTER TABLE " + table + " DROP COLUMN " + column
}

func (b Base) RenameColumn(table, from, to string) string {
	return "ALTER TABLE " + table + " RENAME COLUMN " + from + " TO " + to
}

func (b Base) AlterColumnType(table string, column ColumnDef) string {
	return "ALTER TABLE " + table + " ALTER COLUMN " + column.Name + " TYPE " + column.Type
}

func (b Base) CreateIndex(name, table string, columns []string) string {
	return "CREATE INDEX " + name + " ON " + table + " (" + strings.Join(columns, ", ") + ")"
}

func (b Base) DropIndex(name, _ string) string {
	return "DROP INDEX " + name
}

func (b Base) Insert(table string, columns []string, returning bool) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	cols := strings.Join(columns, ", ")

	if returning {
		switch b.features.IDMode {
		case IDReturning:
			return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING C__ID", table, cols, marks)
		case IDOutput:
			return fmt.Sprintf("INSERT INTO %s (%s) OUTPUT INSERTED.C__ID VALUES (%s)", table, cols, marks)
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, cols, marks)
}

func (b Base) Paginate(limit, offset int64) string {
	if limit < 0 && offset <= 0 {
		return ""
	}

	switch b.features.Paging {
	case OffsetFetch:
		s := " OFFSET " + strconv.FormatInt(max(offset, 0), 10) + " ROWS"
		if limit >= 0 {
			s += " FETCH NEXT " + strconv.FormatInt(limit, 10) + " ROWS ONLY"
		}
		return s
	default:
		var s string
		switch {
		case limit >= 0:
			s = " LIMIT " + strconv.FormatInt(limit, 10)
		case b.features.UnboundedLimit != "":
			s = " LIMIT " + b.features.UnboundedLimit
		}
		if offset > 0 {
			s += " OFFSET " + strconv.FormatInt(offset, 10)
		}
		return s
	}
}

func (b Base) RowNumberPaginate(columns, names, body, orderBy string, limit, offset int64) string {
	offset = max(offset, 0)
	where := "C__RN > " + strconv.FormatInt(offset, 10)
	if limit >= 0 {
		where += " AND C__RN <= " + strconv.FormatInt(offset+limit, 10)
	}
	return "SELECT " + names + " FROM (SELECT " + columns +
		", ROW_NUMBER() OVER (ORDER BY " + orderBy + ") AS C__RN " + body +
		") C__PAGE WHERE " + where + " ORDER BY C__RN"
}

func (b Base) CastDouble(expr string) string {
	return "CAST(" + expr + " AS DOUBLE PRECISION)"
}

func (b Base) Encode(kind shape.Kind, v any) (any, error) {
	return encode(b.features, kind, v)
}

func (b Base) Decode(kind shape.Kind, v any) (any, error) {
	return decode(kind, v)
}
