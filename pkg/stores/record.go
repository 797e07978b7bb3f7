package stores

import (
	"fmt"
	"math"
	"sort"

	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/blob"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/ormerr"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/schema"
)

// bindRecord validates rec against desc and returns the column arguments in
// field order.
func (s *SQLiteStore) bindRecord(desc *schema.TypeDescriptor, rec *Record) ([]any, error) {
	if rec == nil {
		return nil, ormerr.New(ormerr.KindInvalidField, "record is nil").WithType(desc.Name)
	}

	// Unknown fields are checked in name order so errors are deterministic.
	names := make([]string, 0, len(rec.Fields))
	for name := range rec.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := desc.Field(name); !ok {
			return nil, ormerr.New(ormerr.KindInvalidField, "unknown field").WithType(desc.Name).WithField(name)
		}
	}

	args := make([]any, len(desc.Fields))
	for i := range desc.Fields {
		f := &desc.Fields[i]
		v, err := s.bindValue(desc, f, rec.Fields[f.Name])
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func (s *SQLiteStore) bindValue(desc *schema.TypeDescriptor, f *schema.FieldDescriptor, v any) (any, error) {
	fieldErr := func(format string, args ...any) error {
		return ormerr.Newf(ormerr.KindInvalidField, format, args...).WithType(desc.Name).WithField(f.Name)
	}

	if isAbsent(v) {
		if !f.Nullable {
			return nil, fieldErr("required field is absent")
		}
		return nil, nil
	}

	switch f.Type {
	case schema.StorageText:
		str, ok := v.(string)
		if !ok {
			return nil, fieldErr("expected text, got %T", v)
		}
		if f.MaxLength > 0 && int64(len(str)) > f.MaxLength {
			return nil, fieldErr("text of %d bytes exceeds declared length %d", len(str), f.MaxLength)
		}
		return str, nil

	case schema.StorageInteger:
		n, ok := toInt64(v)
		if !ok {
			return nil, fieldErr("expected integer, got %T", v)
		}
		return n, nil

	case schema.StorageReal:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		}
		if n, ok := toInt64(v); ok {
			return float64(n), nil
		}
		return nil, fieldErr("expected real, got %T", v)

	case schema.StorageBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fieldErr("expected bool, got %T", v)
		}
		if b {
			return int64(1), nil
		}
		return int64(0), nil

	case schema.StorageBinary:
		var b blob.Blob
		switch x := v.(type) {
		case blob.Blob:
			b = x
		case []byte:
			b = blob.FromBytes(x)
		default:
			return nil, fieldErr("expected binary, got %T", v)
		}
		enc, err := s.codec.Encode(b, f.MaxLength)
		if err != nil {
			if e, ok := err.(*ormerr.Error); ok {
				e.WithType(desc.Name).WithField(f.Name)
			}
			return nil, err
		}
		s.tel.Metrics.ObserveBlob(desc.Name, "write", b.Len())
		return enc, nil
	}

	return nil, fieldErr("unsupported storage type %s", f.Type)
}

// isAbsent reports whether v means "no value".
func isAbsent(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case []byte:
		return x == nil
	case blob.Blob:
		return !x.Present()
	}
	return false
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	}
	return 0, false
}

// decodeRecord converts one scanned row (identity first) into a Record.
func (s *SQLiteStore) decodeRecord(desc *schema.TypeDescriptor, row []any) (*Record, error) {
	id, ok := toInt64(row[0])
	if !ok {
		return nil, ormerr.Newf(ormerr.KindStorageIO, "unexpected identity value %T", row[0]).WithType(desc.Name)
	}

	rec := &Record{ID: id, Fields: make(map[string]any, len(desc.Fields))}
	for i := range desc.Fields {
		f := &desc.Fields[i]
		v, err := s.decodeValue(desc, f, row[i+1])
		if err != nil {
			return nil, err
		}
		rec.Fields[f.Name] = v
	}
	return rec, nil
}

func (s *SQLiteStore) decodeValue(desc *schema.TypeDescriptor, f *schema.FieldDescriptor, v any) (any, error) {
	if f.Type == schema.StorageBinary {
		b, err := s.codec.Decode(v)
		if err != nil {
			if e, ok := err.(*ormerr.Error); ok {
				e.WithType(desc.Name).WithField(f.Name)
			}
			return nil, err
		}
		if b.Present() {
			s.tel.Metrics.ObserveBlob(desc.Name, "read", b.Len())
		}
		return b, nil
	}

	if v == nil {
		return nil, nil
	}

	var out any
	switch f.Type {
	case schema.StorageText:
		switch x := v.(type) {
		case string:
			out = x
		case []byte:
			out = string(x)
		}
	case schema.StorageInteger:
		if n, ok := toInt64(v); ok {
			out = n
		}
	case schema.StorageReal:
		switch x := v.(type) {
		case float64:
			out = x
		case int64:
			out = float64(x)
		}
	case schema.StorageBool:
		switch x := v.(type) {
		case bool:
			out = x
		case int64:
			out = x != 0
		}
	}
	if out == nil {
		return nil, ormerr.Wrap(ormerr.KindStorageIO, "stored value does not match column type",
			fmt.Errorf("got %T for %s column", v, f.Type)).WithType(desc.Name).WithField(f.Name)
	}
	return out, nil
}
