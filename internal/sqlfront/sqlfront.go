// Package sqlfront is the thin boundary between this engine and the
// external SQL front end. It does not tokenize or parse SELECT statements
// itself: they are handed to github.com/xwb1989/sqlparser (the same
// dependency the teacher repo reaches for, app/sqlite_engine.go), and the
// result is flattened into the {projection, table, predicate} shape
// spec.md §4.6 expects as its executor's input. Column definitions from
// CREATE TABLE text are parsed the way the reference implementation does
// (original_source/app/main.py), a plain split on the column list, because
// that is what correctly recovers the literal "INTEGER PRIMARY KEY" type
// text the PK-aliasing rule keys off of (spec.md §3's PK aliasing).
package sqlfront

import (
	"fmt"
	"strings"

	"github.com/hgye/litequery/internal/record"
	"github.com/xwb1989/sqlparser"
)

// Op is a comparison operator recognized in a WHERE clause.
type Op string

const (
	OpEQ Op = "="
	OpNE Op = "!="
	OpLT Op = "<"
	OpLE Op = "<="
	OpGT Op = ">"
	OpGE Op = ">="
)

// Predicate is a single `column OP literal` comparison. Only this shape is
// supported, per spec.md §1's Non-goals (no compound predicates).
type Predicate struct {
	Column  string
	Op      Op
	Literal record.Value
}

// Select is the normalized shape of a parsed SELECT statement.
type Select struct {
	Table       string
	Star        bool
	CountStar   bool
	Columns     []string // set iff !Star && !CountStar
	Predicate   *Predicate
}

// ParseSelect parses sql (expected to be a single SELECT statement) via
// sqlparser and flattens it into a Select.
func ParseSelect(sql string) (*Select, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("parse sql: %w", err)
	}
	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return nil, fmt.Errorf("unsupported statement type %T: only SELECT is supported", stmt)
	}

	out := &Select{}
	out.Table, err = tableName(sel)
	if err != nil {
		return nil, err
	}

	for _, expr := range sel.SelectExprs {
		switch e := expr.(type) {
		case *sqlparser.StarExpr:
			out.Star = true
		case *sqlparser.AliasedExpr:
			switch inner := e.Expr.(type) {
			case *sqlparser.FuncExpr:
				if !strings.EqualFold(inner.Name.String(), "count") {
					return nil, fmt.Errorf("unsupported function: %s", inner.Name.String())
				}
				if len(inner.Exprs) != 1 {
					return nil, fmt.Errorf("unsupported count() arguments")
				}
				if _, ok := inner.Exprs[0].(*sqlparser.StarExpr); !ok {
					return nil, fmt.Errorf("only count(*) is supported")
				}
				out.CountStar = true
			case *sqlparser.ColName:
				out.Columns = append(out.Columns, inner.Name.String())
			default:
				return nil, fmt.Errorf("unsupported select expression: %T", inner)
			}
		default:
			return nil, fmt.Errorf("unsupported select expression: %T", expr)
		}
	}

	if sel.Where != nil {
		pred, err := parsePredicate(sel.Where.Expr)
		if err != nil {
			return nil, err
		}
		out.Predicate = pred
	}

	return out, nil
}

func tableName(sel *sqlparser.Select) (string, error) {
	if len(sel.From) != 1 {
		return "", fmt.Errorf("only a single table in FROM is supported")
	}
	aliased, ok := sel.From[0].(*sqlparser.AliasedTableExpr)
	if !ok {
		return "", fmt.Errorf("unsupported FROM expression: %T", sel.From[0])
	}
	tn, ok := aliased.Expr.(sqlparser.TableName)
	if !ok {
		return "", fmt.Errorf("unsupported table expression: %T", aliased.Expr)
	}
	return tn.Name.String(), nil
}

// parsePredicate accepts only a single `column OP literal` comparison, per
// the engine's Non-goals (no AND/OR/compound predicates).
func parsePredicate(expr sqlparser.Expr) (*Predicate, error) {
	comp, ok := expr.(*sqlparser.ComparisonExpr)
	if !ok {
		return nil, fmt.Errorf("unsupported WHERE clause: only a single column comparison is supported")
	}
	col, ok := comp.Left.(*sqlparser.ColName)
	if !ok {
		return nil, fmt.Errorf("unsupported WHERE clause: left side must be a column")
	}
	lit, ok := comp.Right.(*sqlparser.SQLVal)
	if !ok {
		return nil, fmt.Errorf("unsupported WHERE clause: right side must be a literal")
	}

	var op Op
	switch comp.Operator {
	case "=":
		op = OpEQ
	case "!=", "<>":
		op = OpNE
	case "<":
		op = OpLT
	case "<=":
		op = OpLE
	case ">":
		op = OpGT
	case ">=":
		op = OpGE
	default:
		return nil, fmt.Errorf("unsupported operator %q", comp.Operator)
	}

	var value record.Value
	switch lit.Type {
	case sqlparser.StrVal:
		value = record.TextValue(string(lit.Val))
	case sqlparser.IntVal:
		var i int64
		if _, err := fmt.Sscanf(string(lit.Val), "%d", &i); err != nil {
			return nil, fmt.Errorf("parse integer literal %q: %w", lit.Val, err)
		}
		value = record.IntValue(i)
	case sqlparser.FloatVal:
		var f float64
		if _, err := fmt.Sscanf(string(lit.Val), "%g", &f); err != nil {
			return nil, fmt.Errorf("parse float literal %q: %w", lit.Val, err)
		}
		value = record.FloatValue(f)
	default:
		return nil, fmt.Errorf("unsupported literal type %v", lit.Type)
	}

	return &Predicate{Column: col.Name.String(), Op: op, Literal: value}, nil
}

// ColumnDef is one column of a CREATE TABLE statement.
type ColumnDef struct {
	Name                string
	Type                string
	IsIntegerPrimaryKey bool
}

// ParseTableColumns recovers the ordered column list from a CREATE TABLE
// statement's SQL text, the way original_source/app/main.py does: split the
// parenthesized column list on commas, then split each entry into a name
// and a declared-type remainder. A column is the rowid alias iff its
// declared type, case-folded, starts with "integer primary key" —
// independent of AUTOINCREMENT, per spec.md §3.
func ParseTableColumns(createSQL string) ([]ColumnDef, error) {
	open := strings.Index(createSQL, "(")
	close := strings.LastIndex(createSQL, ")")
	if open < 0 || close < 0 || close <= open {
		return nil, fmt.Errorf("malformed CREATE TABLE statement: %q", createSQL)
	}
	body := createSQL[open+1 : close]

	specs := splitTopLevel(body)
	cols := make([]ColumnDef, 0, len(specs))
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		fields := strings.Fields(spec)
		if len(fields) == 0 {
			continue
		}
		name := strings.Trim(fields[0], `"`+"`"+`[]`)
		typeText := ""
		if len(fields) > 1 {
			typeText = strings.Join(fields[1:], " ")
		}
		cols = append(cols, ColumnDef{
			Name:                name,
			Type:                typeText,
			IsIntegerPrimaryKey: isIntegerPrimaryKey(typeText),
		})
	}
	return cols, nil
}

func isIntegerPrimaryKey(typeText string) bool {
	fields := strings.Fields(strings.ToLower(typeText))
	if len(fields) < 3 {
		return false
	}
	return fields[0] == "integer" && fields[1] == "primary" && fields[2] == "key"
}

// splitTopLevel splits s on commas that are not nested inside parentheses,
// so a column spec like "price NUMERIC(10,2)" is kept intact.
func splitTopLevel(s string) []string {
	var out []string
	depth := 0
	last := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[last:i])
				last = i + 1
			}
		}
	}
	out = append(out, s[last:])
	return out
}

// ParseIndexColumn recovers the single indexed column name from a CREATE
// INDEX statement's SQL text, e.g. "CREATE INDEX idx_apples_color ON
// apples (color)". Only single-column indexes are supported, per spec.md
// §1's Non-goals.
func ParseIndexColumn(createSQL string) (string, error) {
	open := strings.LastIndex(createSQL, "(")
	closeIdx := strings.LastIndex(createSQL, ")")
	if open < 0 || closeIdx < 0 || closeIdx <= open {
		return "", fmt.Errorf("malformed CREATE INDEX statement: %q", createSQL)
	}
	col := strings.TrimSpace(createSQL[open+1 : closeIdx])
	if strings.Contains(col, ",") {
		return "", fmt.Errorf("multi-column indexes are not supported")
	}
	return strings.Trim(col, `"`+"`"+`[]`), nil
}
