// Package model holds the record types of the images demo and the mapping
// that persists them.
package model

import (
	_ "embed"
	"fmt"

	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/blob"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/mapping"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/ormerr"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/schema"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/stores"
)

// PersonType is the registered type name of Person.
const PersonType = "model.Person"

//go:embed person.map
var defaultMapping string

// DefaultMapping returns the built-in mapping declarations.
func DefaultMapping() string {
	return defaultMapping
}

// Person is a named person with an optional picture.
type Person struct {
	// ID is the storage identity; 0 until stored.
	ID int64 `json:"id"`

	Name string `json:"name"`

	// Picture holds the encoded image bytes. Absent means no picture, which
	// is different from an empty picture.
	Picture blob.Blob `json:"-"`
}

// NewPerson creates a person. A nil picture means no picture.
func NewPerson(name string, picture []byte) *Person {
	return &Person{Name: name, Picture: blob.FromBytes(picture)}
}

// HasPicture reports whether a picture is present.
func (p *Person) HasPicture() bool {
	return p.Picture.Present()
}

// String implements fmt.Stringer.
func (p *Person) String() string {
	return fmt.Sprintf("%s (picture: %s)", p.Name, p.Picture)
}

// ToRecord converts the person to a storage record.
func (p *Person) ToRecord() *stores.Record {
	return &stores.Record{
		ID: p.ID,
		Fields: map[string]any{
			"name":    p.Name,
			"picture": p.Picture,
		},
	}
}

// PersonFromRecord converts a storage record to a person.
func PersonFromRecord(rec *stores.Record) (*Person, error) {
	if rec == nil {
		return nil, ormerr.New(ormerr.KindInvalidField, "record is nil").WithType(PersonType)
	}
	name, ok := rec.Fields["name"].(string)
	if !ok {
		return nil, ormerr.Newf(ormerr.KindInvalidField, "name is %T, not text", rec.Fields["name"]).
			WithType(PersonType).WithField("name")
	}
	return &Person{ID: rec.ID, Name: name, Picture: rec.Blob("picture")}, nil
}

// PersonRecords converts people to records for InsertBatch.
func PersonRecords(people []*Person) []*stores.Record {
	recs := make([]*stores.Record, len(people))
	for i, p := range people {
		recs[i] = p.ToRecord()
	}
	return recs
}

// NewRegistry returns a registry holding the types declared in the mapping
// file at path, or in the built-in mapping when path is empty.
func NewRegistry(path string) (*schema.Registry, error) {
	reg := schema.NewRegistry()
	var err error
	if path == "" {
		_, err = mapping.LoadString(reg, "person.map", defaultMapping)
	} else {
		_, err = mapping.Load(reg, path)
	}
	if err != nil {
		return nil, err
	}
	if _, err := reg.Lookup(PersonType); err != nil {
		return nil, fmt.Errorf("mapping does not declare %s: %w", PersonType, err)
	}
	return reg, nil
}
