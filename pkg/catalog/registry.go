package catalog

import "fmt"

// Table is a named, ordered collection of fields with a unique numeric id,
// registered once at startup (spec §3/§4.5).
type Table struct {
	ID     uint32
	Name   string
	Fields []*Field
}

// FindField looks up a field by name within this table.
func (t *Table) FindField(name string) (*Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Registry is the process-wide catalog of tables, populated during
// startup by pkg/bus, which registers the telemetry, protocol_stats,
// scenario, and fault_injection tables backed by storage it owns.
type Registry struct {
	order  []string
	tables map[string]*Table
	byID   map[uint32]*Field
}

// NewRegistry returns an empty registry ready for subsystems to populate.
func NewRegistry() *Registry {
	return &Registry{
		tables: make(map[string]*Table),
		byID:   make(map[uint32]*Field),
	}
}

// Register adds a table, indexing its fields by their opaque PEEK/POKE
// ids. Registering a table whose name is already present replaces it.
func (r *Registry) Register(t *Table) {
	if _, exists := r.tables[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tables[t.Name] = t
	for _, f := range t.Fields {
		r.byID[f.ID] = f
	}
}

// Tables returns the registered tables in registration order.
func (r *Registry) Tables() []*Table {
	out := make([]*Table, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tables[name])
	}
	return out
}

// FindTable looks up a table by name.
func (r *Registry) FindTable(name string) (*Table, bool) {
	t, ok := r.tables[name]
	return t, ok
}

// FindField looks up a field by "<table>.<field>" components.
func (r *Registry) FindField(table, field string) (*Field, bool) {
	t, ok := r.tables[table]
	if !ok {
		return nil, false
	}
	return t.FindField(field)
}

// FindFieldByID looks up a field by its opaque numeric id, the addressing
// scheme PEEK (0x02) and POKE (0x03) use on the wire.
func (r *Registry) FindFieldByID(id uint32) (*Field, bool) {
	f, ok := r.byID[id]
	return f, ok
}

// Describe renders a one-line summary of a field, for console `describe`.
func Describe(f *Field) string {
	return fmt.Sprintf("%s: %s access=%s units=%q default=%q", f.Name, f.Type, f.Access, f.Units, f.Default)
}
