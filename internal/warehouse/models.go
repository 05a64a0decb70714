package warehouse

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/yaml.v3"
)

var (
	ErrModelCycle      = errors.New("model dependency cycle")
	ErrUnknownRef      = errors.New("unknown model reference")
	ErrModelTestFailed = errors.New("model test failed")
)

const (
	report_unknown_test = "models.unknown-test"
	report_count_models = "models.built"
)

// SchemaFile is the optional model documentation file in a models directory.
const SchemaFile = "schema.yml"

type ColumnDoc struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Meta        struct {
		Label *string `yaml:"label"`
	} `yaml:"meta"`
	// entries are either a test name or a mapping keyed by one
	Tests     []any `yaml:"tests"`
	DataTests []any `yaml:"data_tests"`
}

func (c ColumnDoc) testNames() []string {
	var names []string
	for _, t := range append(slices.Clone(c.Tests), c.DataTests...) {
		switch v := t.(type) {
		case string:
			names = append(names, v)
		case map[string]any:
			for k := range v {
				names = append(names, k)
			}
		}
	}
	return names
}

type ModelDoc struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Columns     []ColumnDoc `yaml:"columns"`
}

type Schema struct {
	Models []ModelDoc `yaml:"models"`
}

func (s Schema) Model(name string) (ModelDoc, bool) {
	for _, m := range s.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelDoc{}, false
}

// Model is a single select statement materialized as a table of the same name.
type Model struct {
	Name string
	// Sql has every ref and source template resolved.
	Sql  string
	Refs []string
}

type Project struct {
	Models []Model
	Schema Schema
}

var (
	refRegex    = regexp.MustCompile(`\{\{\s*ref\(\s*['"]([^'"]+)['"]\s*\)\s*\}\}`)
	sourceRegex = regexp.MustCompile(`\{\{\s*source\(\s*['"]([^'"]+)['"]\s*,\s*['"]([^'"]+)['"]\s*\)\s*\}\}`)
)

// LoadProject reads every *.sql file of dir as a model named after the file
// and the schema.yml next to them when present.
func LoadProject(dir string) (Project, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return Project{}, err
	}
	if len(files) == 0 {
		return Project{}, fmt.Errorf("%w: no models in %s", ErrNoInput, dir)
	}
	slices.Sort(files)

	var project Project
	for _, file := range files {
		contents, err := os.ReadFile(file)
		if err != nil {
			return Project{}, err
		}
		name := strings.TrimSuffix(filepath.Base(file), ".sql")
		project.Models = append(project.Models, parseModel(name, string(contents)))
	}

	data, err := os.ReadFile(filepath.Join(dir, SchemaFile))
	if err == nil {
		err = yaml.Unmarshal(data, &project.Schema)
		if err != nil {
			return Project{}, fmt.Errorf("parse %s: %w", SchemaFile, err)
		}
	} else if !os.IsNotExist(err) {
		return Project{}, err
	}
	return project, nil
}

func parseModel(name, sql string) Model {
	m := Model{Name: name}
	sql = refRegex.ReplaceAllStringFunc(sql, func(match string) string {
		ref := refRegex.FindStringSubmatch(match)[1]
		if !slices.Contains(m.Refs, ref) {
			m.Refs = append(m.Refs, ref)
		}
		return Ident(ref)
	})
	sql = sourceRegex.ReplaceAllStringFunc(sql, func(match string) string {
		groups := sourceRegex.FindStringSubmatch(match)
		return Ident(groups[1]) + "." + Ident(groups[2])
	})
	m.Sql = strings.TrimRight(strings.TrimSpace(sql), ";")
	return m
}

// Order sorts the models so each one comes after the models it refs, models
// that are ready at the same time are taken in name order.
func Order(models []Model) ([]Model, error) {
	byName := make(map[string]Model, len(models))
	for _, m := range models {
		byName[m.Name] = m
	}

	pending := map[string]int{}
	dependents := map[string][]string{}
	for _, m := range models {
		for _, ref := range m.Refs {
			if _, ok := byName[ref]; !ok {
				return nil, fmt.Errorf("%w: %s refs %s", ErrUnknownRef, m.Name, ref)
			}
			pending[m.Name]++
			dependents[ref] = append(dependents[ref], m.Name)
		}
	}

	var ready []string
	for _, m := range models {
		if pending[m.Name] == 0 {
			ready = append(ready, m.Name)
		}
	}

	ordered := make([]Model, 0, len(models))
	for len(ready) > 0 {
		slices.Sort(ready)
		name := ready[0]
		ready = ready[1:]
		ordered = append(ordered, byName[name])

		for _, dep := range dependents[name] {
			pending[dep]--
			if pending[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(ordered) != len(models) {
		var stuck []string
		for _, m := range models {
			if pending[m.Name] > 0 {
				stuck = append(stuck, m.Name)
			}
		}
		slices.Sort(stuck)
		return nil, fmt.Errorf("%w: %s", ErrModelCycle, strings.Join(stuck, ", "))
	}
	return ordered, nil
}

// BuildModels materializes every model of the project in dependency order
// and then runs the column tests declared in the schema. It returns the row
// count of each model.
func (w *Warehouse) BuildModels(ctx context.Context, project Project) (map[string]int64, error) {
	ctx, span := tracer.Start(ctx, "warehouse:BuildModels")
	defer span.End()

	ordered, err := Order(project.Models)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to order models")
		return nil, err
	}

	counts := map[string]int64{}
	for _, m := range ordered {
		_, err = w.db.ExecContext(ctx, fmt.Sprintf("create or replace table %s as %s", Ident(m.Name), m.Sql))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to build model")
			return nil, fmt.Errorf("build model %s: %w", m.Name, err)
		}
		n, err := w.CountRows(ctx, Ident(m.Name))
		if err != nil {
			return nil, err
		}
		counts[m.Name] = n
	}
	span.SetAttributes(attribute.Int("models", len(ordered)))
	w.tel.ReportCount(report_count_models, int64(len(ordered)))

	err = w.TestModels(ctx, project)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model tests failed")
		return counts, err
	}
	return counts, nil
}

// TestModels runs the not_null and unique column tests of the schema, every
// failing test is reported in the returned error.
func (w *Warehouse) TestModels(ctx context.Context, project Project) error {
	var failures []error
	for _, doc := range project.Schema.Models {
		for _, col := range doc.Columns {
			for _, test := range col.testNames() {
				var query string
				switch test {
				case "not_null":
					query = fmt.Sprintf(
						"select count(*) from %s where %s is null",
						Ident(doc.Name), Ident(col.Name),
					)
				case "unique":
					query = fmt.Sprintf(
						"select count(*) from (select %[2]s from %[1]s where %[2]s is not null group by %[2]s having count(*) > 1)",
						Ident(doc.Name), Ident(col.Name),
					)
				default:
					w.tel.ReportWarning(report_unknown_test, doc.Name, col.Name, test)
					continue
				}

				var n int64
				err := w.db.QueryRowContext(ctx, query).Scan(&n)
				if err != nil {
					failures = append(failures, fmt.Errorf("%s.%s %s: %w", doc.Name, col.Name, test, err))
					continue
				}
				if n > 0 {
					failures = append(failures, fmt.Errorf("%w: %s.%s %s (%d failing rows)", ErrModelTestFailed, doc.Name, col.Name, test, n))
				}
			}
		}
	}
	return errors.Join(failures...)
}
