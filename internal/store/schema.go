package store

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/roach88/dust/internal/entity"
)

// Base column names shared by every primary table.
const (
	ColGlobalID = "_global_id"
	ColUnit     = "_unit"
	ColMetaType = "_meta_type"
	ColEntityID = "_entity_id"
	ColValueCnt = "_value_cnt"
)

// Column is one column of a derived table.
type Column struct {
	Name       string
	Type       string
	PrimaryKey bool
	Base       bool          // _global_id, ancestry and _value_cnt columns
	Field      *entity.Field // nil for base columns
}

// Table is a derived relational table.
type Table struct {
	Name    string
	Columns []Column
	Field   *entity.Field // set on auxiliary tables

	Insert Statement
	Select Statement
	Update Statement // empty when the table has no value columns
	Delete Statement
}

// PrimaryKeys returns the names of the primary key columns in order.
func (t *Table) PrimaryKeys() []string {
	var keys []string
	for _, c := range t.Columns {
		if c.PrimaryKey {
			keys = append(keys, c.Name)
		}
	}
	return keys
}

// ValueColumns returns the non-base columns.
func (t *Table) ValueColumns() []Column {
	var out []Column
	for _, c := range t.Columns {
		if !c.Base {
			out = append(out, c)
		}
	}
	return out
}

// Schema is the relational mapping of one meta-type: a primary table plus one
// auxiliary table per SET or LIST field.
type Schema struct {
	Type    *entity.MetaType
	Primary *Table
	Aux     []*Table
}

// Tables returns the primary table followed by the auxiliary tables.
func (s *Schema) Tables() []*Table {
	return append([]*Table{s.Primary}, s.Aux...)
}

// TableName returns the primary table name of a type.
func TableName(mt *entity.MetaType) string {
	return mt.Unit + "_" + mt.Name
}

// DeriveSchema maps mt to tables and renders their statements for d.
func DeriveSchema(d Dialect, mt *entity.MetaType) (*Schema, error) {
	name := TableName(mt)
	primary := &Table{Name: name}
	primary.Columns = append(primary.Columns,
		Column{Name: ColGlobalID, Type: d.SQLType(entity.DatatypeString, entity.CardSingle, true), PrimaryKey: true, Base: true},
		Column{Name: ColUnit, Type: d.SQLType(entity.DatatypeEntity, entity.CardSingle, false), Base: true},
		Column{Name: ColMetaType, Type: d.SQLType(entity.DatatypeEntity, entity.CardSingle, false), Base: true},
		Column{Name: ColEntityID, Type: d.SQLType(entity.DatatypeInt, entity.CardSingle, false), Base: true},
	)

	sch := &Schema{Type: mt, Primary: primary}
	for _, f := range mt.Fields {
		if !f.Multi() {
			primary.Columns = append(primary.Columns, Column{
				Name:  fieldColumn(f),
				Type:  d.SQLType(f.Datatype, f.Cardinality, false),
				Field: f,
			})
			continue
		}
		aux := &Table{Name: name + "_" + f.Name, Field: f}
		aux.Columns = []Column{
			{Name: ColGlobalID, Type: d.SQLType(entity.DatatypeString, entity.CardSingle, true), PrimaryKey: true, Base: true},
			{Name: ColValueCnt, Type: d.SQLType(entity.DatatypeInt, entity.CardSingle, false), PrimaryKey: true, Base: true},
			{Name: valueColumn(f), Type: d.SQLType(f.Datatype, entity.CardSingle, false), Field: f},
		}
		sch.Aux = append(sch.Aux, aux)
	}

	for _, t := range sch.Tables() {
		if err := t.render(d); err != nil {
			return nil, fmt.Errorf("derive schema %s: %w", mt.Name, err)
		}
	}
	return sch, nil
}

// fieldColumn names the primary table column of a SINGLE or MAP field.
func fieldColumn(f *entity.Field) string {
	return "_" + f.Name
}

func valueColumn(f *entity.Field) string {
	return "_" + f.Name + "_value"
}

func (t *Table) render(d Dialect) error {
	var err error
	if t.Insert, err = renderStatement(d, "insert", insertTemplate, t); err != nil {
		return err
	}
	if t.Select, err = renderStatement(d, "select", selectTemplate, t); err != nil {
		return err
	}
	if t.Delete, err = renderStatement(d, "delete", deleteTemplate, t); err != nil {
		return err
	}
	if len(t.ValueColumns()) > 0 && t.Field == nil {
		if t.Update, err = renderStatement(d, "update", updateTemplate, t); err != nil {
			return err
		}
	}
	return nil
}

// CreateStatement renders the DDL for t using the dialect's template.
func CreateStatement(d Dialect, t *Table) (string, error) {
	st, err := renderStatement(d, "create", d.CreateTableTemplate(t), t)
	if err != nil {
		return "", err
	}
	return st.SQL, nil
}

// filteredTable is the template data of a filtered select.
type filteredTable struct {
	*Table
	Where string
}

// selectWhere renders the select of t restricted by a compiled WHERE
// clause. An empty clause yields the unfiltered select.
func (t *Table) selectWhere(d Dialect, where string) (string, error) {
	if where == "" {
		return t.Select.SQL, nil
	}
	st, err := renderStatement(d, "select-where", selectWhereTemplate, filteredTable{Table: t, Where: where})
	if err != nil {
		return "", err
	}
	return st.SQL, nil
}

// Statement is rendered SQL plus the names of its bind parameters in order.
type Statement struct {
	SQL    string
	Params []string
}

// Bind orders named values as positional arguments.
func (st Statement) Bind(values map[string]any) ([]any, error) {
	args := make([]any, len(st.Params))
	for i, name := range st.Params {
		v, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("missing parameter %s", name)
		}
		args[i] = v
	}
	return args, nil
}

func renderStatement(d Dialect, name, text string, data any) (Statement, error) {
	var params []string
	funcs := template.FuncMap{
		"param": func(col string) string {
			params = append(params, col)
			return d.Placeholder(len(params))
		},
		"quote": d.Quote,
	}
	tmpl, err := template.New(name).Funcs(funcs).Parse(text)
	if err != nil {
		return Statement{}, fmt.Errorf("parse %s template: %w", name, err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return Statement{}, fmt.Errorf("render %s template: %w", name, err)
	}
	return Statement{SQL: sb.String(), Params: params}, nil
}

const createTableTemplate = `CREATE TABLE IF NOT EXISTS {{quote .Name}} (
{{- range $i, $c := .Columns}}{{if $i}},{{end}}
    {{quote $c.Name}} {{$c.Type}}{{if $c.PrimaryKey}} PRIMARY KEY{{end}}
{{- end}}
)`

const createTableMultiPKTemplate = `CREATE TABLE IF NOT EXISTS {{quote .Name}} (
{{- range .Columns}}
    {{quote .Name}} {{.Type}},
{{- end}}
    PRIMARY KEY ({{range $i, $k := .PrimaryKeys}}{{if $i}}, {{end}}{{quote $k}}{{end}})
)`

const insertTemplate = `INSERT INTO {{quote .Name}} (
{{- range $i, $c := .Columns}}{{if $i}}, {{end}}{{quote $c.Name}}{{end -}}
) VALUES (
{{- range $i, $c := .Columns}}{{if $i}}, {{end}}{{param $c.Name}}{{end -}}
)`

const selectTemplate = `SELECT {{range $i, $c := .Columns}}{{if $i}}, {{end}}{{quote $c.Name}}{{end}} FROM {{quote .Name}} ORDER BY {{range $i, $k := .PrimaryKeys}}{{if $i}}, {{end}}{{quote $k}}{{end}}`

const selectWhereTemplate = `SELECT {{range $i, $c := .Columns}}{{if $i}}, {{end}}{{quote $c.Name}}{{end}} FROM {{quote .Name}} WHERE {{.Where}} ORDER BY {{range $i, $k := .PrimaryKeys}}{{if $i}}, {{end}}{{quote $k}}{{end}}`

const updateTemplate = `UPDATE {{quote .Name}} SET {{range $i, $c := .ValueColumns}}{{if $i}}, {{end}}{{quote $c.Name}} = {{param $c.Name}}{{end}} WHERE {{quote "_global_id"}} = {{param "_global_id"}}`

const deleteTemplate = `DELETE FROM {{quote .Name}} WHERE {{quote "_global_id"}} = {{param "_global_id"}}`
