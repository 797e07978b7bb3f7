package schema

import (
	"errors"
	"sync"
	"testing"

	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/ormerr"
)

func personDescriptor() TypeDescriptor {
	return TypeDescriptor{
		Name: "model.Person",
		Fields: []FieldDescriptor{
			{Name: "name", SQLType: "VARCHAR(64)"},
			{Name: "picture", SQLType: "BLOB", Nullable: true},
		},
	}
}

func TestRegisterAppliesDefaults(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(personDescriptor()); err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	d, err := reg.Lookup("model.Person")
	if err != nil {
		t.Fatalf("failed to lookup: %v", err)
	}

	if d.Table != "Person" {
		t.Errorf("expected table Person, got %s", d.Table)
	}

	name, ok := d.Field("name")
	if !ok {
		t.Fatal("expected field name")
	}
	if name.Column != "name" {
		t.Errorf("expected column name, got %s", name.Column)
	}
	if name.Type != StorageText {
		t.Errorf("expected text storage, got %s", name.Type)
	}
	if name.MaxLength != 64 {
		t.Errorf("expected max length 64, got %d", name.MaxLength)
	}

	pic, _ := d.Field("picture")
	if pic.Type != StorageBinary || !pic.Nullable {
		t.Errorf("expected nullable binary picture, got %+v", pic)
	}
}

func TestRegisterDuplicateType(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(personDescriptor()); err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	err := reg.Register(personDescriptor())
	if !errors.Is(err, ormerr.ErrDuplicateType) {
		t.Fatalf("expected DuplicateType, got %v", err)
	}
}

func TestRegisterInvalidFields(t *testing.T) {
	tests := []struct {
		name string
		desc TypeDescriptor
	}{
		{
			name: "shared column",
			desc: TypeDescriptor{Name: "A", Fields: []FieldDescriptor{
				{Name: "a", Column: "x", SQLType: "TEXT"},
				{Name: "b", Column: "X", SQLType: "TEXT"},
			}},
		},
		{
			name: "duplicate field name",
			desc: TypeDescriptor{Name: "A", Fields: []FieldDescriptor{
				{Name: "a", Column: "x", SQLType: "TEXT"},
				{Name: "a", Column: "y", SQLType: "TEXT"},
			}},
		},
		{
			name: "non-nullable blob without length",
			desc: TypeDescriptor{Name: "A", Fields: []FieldDescriptor{
				{Name: "data", SQLType: "BLOB"},
			}},
		},
		{
			name: "identity column collision",
			desc: TypeDescriptor{Name: "A", Fields: []FieldDescriptor{
				{Name: "id", Column: "_ID", SQLType: "INTEGER"},
			}},
		},
		{
			name: "unsupported sql type",
			desc: TypeDescriptor{Name: "A", Fields: []FieldDescriptor{
				{Name: "price", SQLType: "DECIMAL(10,2)"},
			}},
		},
		{
			name: "storage type disagrees with sql type",
			desc: TypeDescriptor{Name: "A", Fields: []FieldDescriptor{
				{Name: "n", SQLType: "TEXT", Type: StorageInteger},
			}},
		},
		{
			name: "bad column identifier",
			desc: TypeDescriptor{Name: "A", Fields: []FieldDescriptor{
				{Name: "n", Column: "first name", SQLType: "TEXT"},
			}},
		},
		{
			name: "no fields",
			desc: TypeDescriptor{Name: "A"},
		},
		{
			name: "no sql type and no storage type",
			desc: TypeDescriptor{Name: "A", Fields: []FieldDescriptor{{Name: "n"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().Register(tt.desc)
			if !errors.Is(err, ormerr.ErrInvalidField) {
				t.Fatalf("expected InvalidField, got %v", err)
			}
		})
	}
}

func TestRegisterNonNullableBlobWithLength(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(TypeDescriptor{Name: "Thumb", Fields: []FieldDescriptor{
		{Name: "data", SQLType: "BLOB(4096)"},
	}})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	d, _ := reg.Lookup("Thumb")
	f, _ := d.Field("data")
	if f.MaxLength != 4096 {
		t.Errorf("expected max length 4096, got %d", f.MaxLength)
	}
}

func TestRegisterStorageTypeOnly(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(TypeDescriptor{Name: "Flag", Fields: []FieldDescriptor{
		{Name: "on", Type: StorageBool},
		{Name: "weight", Type: StorageReal, Nullable: true},
	}})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	d, _ := reg.Lookup("Flag")
	if f, _ := d.Field("on"); f.SQLType != "BOOLEAN" {
		t.Errorf("expected BOOLEAN, got %s", f.SQLType)
	}
}

func TestRegisterTableCollision(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(TypeDescriptor{Name: "a.Person", Fields: []FieldDescriptor{{Name: "n", SQLType: "TEXT"}}})

	err := reg.Register(TypeDescriptor{Name: "b.Person", Fields: []FieldDescriptor{{Name: "n", SQLType: "TEXT"}}})
	if !errors.Is(err, ormerr.ErrInvalidField) {
		t.Fatalf("expected InvalidField for shared table, got %v", err)
	}
}

func TestLookupUnknownType(t *testing.T) {
	_, err := NewRegistry().Lookup("Nobody")
	if !errors.Is(err, ormerr.ErrUnknownType) {
		t.Fatalf("expected UnknownType, got %v", err)
	}
}

func TestRegisteredDescriptorIsImmutable(t *testing.T) {
	reg := NewRegistry()
	desc := personDescriptor()
	reg.MustRegister(desc)

	desc.Fields[0].Column = "mutated"

	d, _ := reg.Lookup("model.Person")
	d.Fields[1].Nullable = false

	again, _ := reg.Lookup("model.Person")
	if again.Fields[0].Column != "name" {
		t.Errorf("registry saw caller mutation: %s", again.Fields[0].Column)
	}
	if !again.Fields[1].Nullable {
		t.Error("registry saw mutation of a looked-up copy")
	}
}

func TestTypesSortedAndConcurrent(t *testing.T) {
	reg := NewRegistry()
	names := []string{"Zeta", "Alpha", "Mid"}

	var wg sync.WaitGroup
	for _, n := range names {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			reg.MustRegister(TypeDescriptor{Name: n, Fields: []FieldDescriptor{{Name: "v", SQLType: "INTEGER"}}})
		}(n)
	}
	wg.Wait()

	types := reg.Types()
	if len(types) != 3 || reg.Len() != 3 {
		t.Fatalf("expected 3 types, got %d", len(types))
	}
	if types[0].Name != "Alpha" || types[2].Name != "Zeta" {
		t.Errorf("types not sorted: %s, %s, %s", types[0].Name, types[1].Name, types[2].Name)
	}
}

func TestStorageTypeFor(t *testing.T) {
	tests := []struct {
		sqlType string
		want    StorageType
	}{
		{"VARCHAR(100)", StorageText},
		{"text", StorageText},
		{"BIGINT", StorageInteger},
		{"DOUBLE", StorageReal},
		{"BLOB", StorageBinary},
		{"BOOLEAN", StorageBool},
		{"DATE", StorageUnknown},
	}

	for _, tt := range tests {
		if got := StorageTypeFor(tt.sqlType); got != tt.want {
			t.Errorf("StorageTypeFor(%q) = %s, want %s", tt.sqlType, got, tt.want)
		}
	}
}

func TestDeclaredLength(t *testing.T) {
	tests := map[string]int64{
		"VARCHAR(64)":   64,
		"BLOB( 512 )":   512,
		"BLOB":          0,
		"DECIMAL(10,2)": 0,
		"CHAR(0)":       0,
	}
	for in, want := range tests {
		if got := DeclaredLength(in); got != want {
			t.Errorf("DeclaredLength(%q) = %d, want %d", in, got, want)
		}
	}
}
