package plan

import (
	"fmt"
	"reflect"
	"strings"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dmarkhas/servus/internal/typeref"
)

// Field describes one injectable field of a consumer type: which service
// key satisfies it, whether it is optional, and the index path used to set
// it without re-walking the type.
type Field struct {
	Name     string
	Key      string
	Optional bool
	Index    []int
	Type     reflect.Type
}

// Plan is the capability descriptor of a consumer type: every injectable
// field, embedded structs included, discovered once and reused.
type Plan struct {
	TypeKey string
	Fields  []Field
}

func (p *Plan) Required() []Field {
	out := make([]Field, 0, len(p.Fields))
	for _, f := range p.Fields {
		if !f.Optional {
			out = append(out, f)
		}
	}
	return out
}

func (p *Plan) Optional() []Field {
	out := make([]Field, 0, len(p.Fields))
	for _, f := range p.Fields {
		if f.Optional {
			out = append(out, f)
		}
	}
	return out
}

// Set assigns value onto the field of structVal addressed by f's index
// path, checking assignability first.
func (p *Plan) Set(structVal reflect.Value, f Field, value any) error {
	fieldVal := structVal.FieldByIndex(f.Index)

	if value == nil {
		fieldVal.Set(reflect.Zero(f.Type))
		return nil
	}

	valueVal := reflect.ValueOf(value)
	if !valueVal.Type().AssignableTo(f.Type) {
		return fmt.Errorf("cannot assign %s to field %s of type %s", valueVal.Type(), f.Name, f.Type)
	}

	fieldVal.Set(valueVal)
	return nil
}

// Build walks t (a struct type) collecting fields carrying tag. Anonymous
// struct fields without their own tag are descended into so embedded
// declarations are inherited. Tag format: `inject:""`, `inject:"name"`,
// `inject:",optional"`.
func Build(t reflect.Type, tag string) (*Plan, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("injection requires a struct type, got %s", t.Kind())
	}

	p := &Plan{TypeKey: typeref.KeyFromType(t)}
	if err := walkFields(t, tag, nil, "", p); err != nil {
		return nil, err
	}
	return p, nil
}

func walkFields(t reflect.Type, tag string, index []int, prefix string, p *Plan) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tagVal, tagged := f.Tag.Lookup(tag)

		if !tagged {
			if f.Anonymous {
				embedded := f.Type
				if embedded.Kind() == reflect.Ptr {
					continue // pointer embeds may be nil at commit time
				}
				if embedded.Kind() == reflect.Struct {
					childIndex := append(append([]int(nil), index...), i)
					if err := walkFields(embedded, tag, childIndex, prefix+f.Name+".", p); err != nil {
						return err
					}
				}
			}
			continue
		}

		if f.PkgPath != "" {
			return fmt.Errorf("injectable field %s%s is unexported", prefix, f.Name)
		}

		name, optional := parseTag(tagVal)
		key := typeref.KeyFromType(f.Type)
		if name != "" {
			key += "#" + name
		}

		p.Fields = append(p.Fields, Field{
			Name:     prefix + f.Name,
			Key:      key,
			Optional: optional,
			Index:    append(append([]int(nil), index...), i),
			Type:     f.Type,
		})
	}
	return nil
}

func parseTag(tagVal string) (name string, optional bool) {
	parts := strings.Split(tagVal, ",")
	name = strings.TrimSpace(parts[0])
	for _, opt := range parts[1:] {
		if strings.TrimSpace(opt) == "optional" {
			optional = true
		}
	}
	return name, optional
}

// Cache memoizes plans per consumer type so discovery runs once per type,
// not once per injection.
type Cache struct {
	tag   string
	plans *gocache.Cache
}

func NewCache(tag string) *Cache {
	return &Cache{
		tag:   tag,
		plans: gocache.New(gocache.NoExpiration, 0),
	}
}

// For returns the plan for consumer's type plus the addressable struct
// value to commit into. consumer must be a non-nil pointer to a struct.
func (c *Cache) For(consumer any) (*Plan, reflect.Value, error) {
	rv := reflect.ValueOf(consumer)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return nil, reflect.Value{}, fmt.Errorf("injection consumer must be a non-nil struct pointer, got %T", consumer)
	}

	elem := rv.Elem()
	t := elem.Type()
	key := typeref.KeyFromType(t)

	if cached, ok := c.plans.Get(key); ok {
		return cached.(*Plan), elem, nil
	}

	p, err := Build(t, c.tag)
	if err != nil {
		return nil, reflect.Value{}, err
	}

	c.plans.Set(key, p, gocache.NoExpiration)
	return p, elem, nil
}
