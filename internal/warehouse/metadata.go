package warehouse

import "gktracker/lib/fsutil"

// MetadataFile is the name the dashboard expects the table metadata under.
const MetadataFile = "table_metadata.json"

type ColumnMetadata struct {
	Label       *string `json:"label"`
	Description string  `json:"description"`
}

type ModelMetadata struct {
	Description string                    `json:"description"`
	Columns     map[string]ColumnMetadata `json:"columns"`
}

type TableMetadata struct {
	Models map[string]ModelMetadata `json:"models"`
}

// Metadata describes every model of the project using its schema docs,
// undocumented models get an empty description and no columns.
func (p Project) Metadata() TableMetadata {
	out := TableMetadata{Models: map[string]ModelMetadata{}}
	for _, m := range p.Models {
		doc, _ := p.Schema.Model(m.Name)
		model := ModelMetadata{
			Description: doc.Description,
			Columns:     map[string]ColumnMetadata{},
		}
		for _, col := range doc.Columns {
			model.Columns[col.Name] = ColumnMetadata{
				Label:       col.Meta.Label,
				Description: col.Description,
			}
		}
		out.Models[m.Name] = model
	}
	return out
}

// WriteTableMetadata writes the project's metadata to path.
func WriteTableMetadata(project Project, path string) error {
	return fsutil.WriteJSON(path, project.Metadata())
}
