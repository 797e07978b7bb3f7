// Package schema holds the mapping between record types and relational
// tables: one TypeDescriptor per managed type, each with an ordered list of
// field-to-column mappings. Descriptors are validated and frozen on Register.
package schema

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/ormerr"
)

var (
	sqlIdentPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	typeNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*)*$`)
)

// Registry holds one descriptor per managed type. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	types    map[string]*TypeDescriptor
	tables   map[string]string // lower-case table name -> type name
	validate *validator.Validate
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("sqlident", func(fl validator.FieldLevel) bool {
		return sqlIdentPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("typename", func(fl validator.FieldLevel) bool {
		return typeNamePattern.MatchString(fl.Field().String())
	})

	return &Registry{
		types:    make(map[string]*TypeDescriptor),
		tables:   make(map[string]string),
		validate: v,
	}
}

// Register validates desc and adds it to the registry.
func (r *Registry) Register(desc TypeDescriptor) error {
	d, err := r.normalize(desc)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[d.Name]; exists {
		return ormerr.Newf(ormerr.KindDuplicateType, "type %q is already registered", d.Name).WithType(d.Name)
	}
	if owner, taken := r.tables[strings.ToLower(d.Table)]; taken {
		return ormerr.Newf(ormerr.KindInvalidField, "table %q is already mapped by type %q", d.Table, owner).WithType(d.Name)
	}

	r.types[d.Name] = d
	r.tables[strings.ToLower(d.Table)] = d.Name
	return nil
}

// MustRegister is like Register but panics on error. Intended for package
// level declarations of built-in types.
func (r *Registry) MustRegister(desc TypeDescriptor) {
	if err := r.Register(desc); err != nil {
		panic(fmt.Sprintf("schema: %v", err))
	}
}

// Lookup returns a copy of the descriptor registered under name.
func (r *Registry) Lookup(name string) (*TypeDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.types[name]
	if !ok {
		return nil, ormerr.Newf(ormerr.KindUnknownType, "type %q is not registered", name).WithType(name)
	}
	return d.clone(), nil
}

// Types returns copies of all registered descriptors sorted by name.
func (r *Registry) Types() []*TypeDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*TypeDescriptor, 0, len(r.types))
	for _, d := range r.types {
		out = append(out, d.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// normalize fills defaults and checks every rule that can be decided from the
// descriptor alone.
func (r *Registry) normalize(desc TypeDescriptor) (*TypeDescriptor, error) {
	d := desc.clone()
	if d.Table == "" {
		d.Table = defaultTableName(d.Name)
	}

	for i := range d.Fields {
		f := &d.Fields[i]
		if f.Column == "" {
			f.Column = f.Name
		}
		if f.SQLType == "" {
			f.SQLType = f.Type.DefaultSQLType()
		}
		derived := StorageTypeFor(f.SQLType)
		if f.SQLType != "" && derived == StorageUnknown {
			return nil, invalidField(d.Name, f.Name, fmt.Sprintf("sql type %q has no supported storage type", f.SQLType))
		}
		if f.Type == StorageUnknown {
			f.Type = derived
		} else if f.SQLType != "" && f.Type != derived {
			return nil, invalidField(d.Name, f.Name, fmt.Sprintf("storage type %s does not match sql type %q", f.Type, f.SQLType))
		}
		if f.MaxLength == 0 {
			f.MaxLength = DeclaredLength(f.SQLType)
		}
	}

	if err := r.validate.Struct(d); err != nil {
		return nil, translateValidation(d, err)
	}

	names := make(map[string]bool, len(d.Fields))
	columns := make(map[string]string, len(d.Fields))
	for _, f := range d.Fields {
		if names[f.Name] {
			return nil, invalidField(d.Name, f.Name, "field declared twice")
		}
		names[f.Name] = true

		col := strings.ToLower(f.Column)
		if col == IdentityColumn {
			return nil, invalidField(d.Name, f.Name, fmt.Sprintf("column %q is reserved for the storage identity", f.Column))
		}
		if other, dup := columns[col]; dup {
			return nil, invalidField(d.Name, f.Name, fmt.Sprintf("column %q is already used by field %q", f.Column, other))
		}
		columns[col] = f.Name

		if f.Type == StorageBinary && !f.Nullable && f.MaxLength == 0 {
			return nil, invalidField(d.Name, f.Name, "non-nullable binary field needs a declared length, e.g. BLOB(65536)")
		}
	}

	return d, nil
}

func invalidField(typeName, field, msg string) error {
	return ormerr.New(ormerr.KindInvalidField, msg).WithType(typeName).WithField(field)
}

func translateValidation(d *TypeDescriptor, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return ormerr.Wrap(ormerr.KindInvalidField, "invalid type descriptor", err).WithType(d.Name)
	}

	fe := verrs[0]
	field := ""
	// Namespace looks like "TypeDescriptor.Fields[1].Column".
	if i := strings.Index(fe.Namespace(), "Fields["); i >= 0 {
		var idx int
		if _, scanErr := fmt.Sscanf(fe.Namespace()[i:], "Fields[%d]", &idx); scanErr == nil && idx < len(d.Fields) {
			field = d.Fields[idx].Name
		}
	}
	msg := fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag())
	if fe.Param() != "" {
		msg = fmt.Sprintf("%s failed %q validation (%s)", fe.Field(), fe.Tag(), fe.Param())
	}
	return ormerr.New(ormerr.KindInvalidField, msg).WithType(d.Name).WithField(field)
}
