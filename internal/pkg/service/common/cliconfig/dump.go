package cliconfig

import (
	"encoding"
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/cast"
)

// KVs is a flat list of the configuration values, see Dump.
type KVs []KV

type KV struct {
	Key   string
	Value string
}

func (v KVs) String() string {
	var out strings.Builder
	for i, kv := range v {
		if i > 0 {
			out.WriteString(" ")
		}
		out.WriteString(kv.Key)
		out.WriteString("=")
		out.WriteString(kv.Value)
		out.WriteString(";")
	}
	return out.String()
}

// Dump the configuration structure as key-value pairs, fields with the `sensitive:"true"` tag are skipped.
func Dump(config any) (KVs, error) {
	v := reflect.ValueOf(config)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}

	out := make(KVs, 0)
	if err := dumpStruct(v, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func dumpStruct(v reflect.Value, parent string, out *KVs) error {
	if v.Kind() != reflect.Struct {
		return nil
	}

	t := v.Type()
	for i := range t.NumField() {
		field := t.Field(i)
		name := field.Tag.Get(TagKey)
		if name == "" || field.Tag.Get("sensitive") == "true" {
			continue
		}

		key := name
		if parent != "" {
			key = parent + "." + name
		}

		if err := dumpValue(key, v.Field(i), out); err != nil {
			return err
		}
	}
	return nil
}

func dumpValue(key string, v reflect.Value, out *KVs) error {
	if (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) && v.IsNil() {
		*out = append(*out, KV{Key: key, Value: "<nil>"})
		return nil
	}

	// Methods may be defined on the pointer type
	ptr := v
	if v.Kind() != reflect.Pointer {
		ptr = reflect.New(v.Type())
		ptr.Elem().Set(v)
	}

	var str string
	switch value := ptr.Interface().(type) {
	case encoding.TextMarshaler:
		text, err := value.MarshalText()
		if err != nil {
			return err
		}
		str = string(text)
	case fmt.Stringer:
		str = value.String()
	default:
		if ptr.Elem().Kind() == reflect.Struct {
			return dumpStruct(ptr.Elem(), key, out)
		}
		str = cast.ToString(ptr.Elem().Interface())
	}

	*out = append(*out, KV{Key: key, Value: str})
	return nil
}
