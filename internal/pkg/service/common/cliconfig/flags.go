// Package cliconfig binds a configuration structure to flags, ENVs and a config file.
//
// Each field tagged by the "configKey" tag is mapped to one flag, the field can have the "configUsage" tag.
// Nested structures are mapped with the dot separated path, for example "distributor.chunkSize",
// the flag name is "distributor-chunk-size" and the ENV name is "<PREFIX>DISTRIBUTOR_CHUNK_SIZE".
package cliconfig

import (
	"encoding"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/umisama/go-regexpcache"

	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

const (
	TagKey   = "configKey"
	TagUsage = "configUsage"
	// annotationKey stores the config key path in the flag annotations.
	annotationKey = "configKey"
)

// GenerateFlags generates flags from the config structure to the FlagSet.
// Current field values are used as default values of the flags.
// The config parameter can be a structure or a pointer to a structure.
func GenerateFlags(fs *pflag.FlagSet, config any) error {
	value := reflect.ValueOf(config)
	if value.Kind() == reflect.Pointer {
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return errors.Errorf(`type "%s" is not a struct or a pointer to a struct, it cannot be mapped to the FlagSet`, value.Type().String())
	}
	return flagsFromStruct(fs, value, nil)
}

func flagsFromStruct(fs *pflag.FlagSet, structValue reflect.Value, parents []string) error {
	structType := structValue.Type()
	for i := range structType.NumField() {
		fieldType := structType.Field(i)
		fieldValue := structValue.Field(i)

		partName, found := fieldType.Tag.Lookup(TagKey)
		if !found || partName == "" {
			continue
		}

		fieldPath := append(append([]string{}, parents...), partName)
		keyPath := strings.Join(fieldPath, ".")
		flagName := KeyToFlagName(keyPath)
		usage := fieldType.Tag.Get(TagUsage)

		switch v := fieldValue.Interface().(type) {
		case time.Duration:
			fs.Duration(flagName, v, usage)
		case encoding.TextMarshaler:
			text, err := v.MarshalText()
			if err != nil {
				return errors.PrefixErrorf(err, `cannot generate flag "%s"`, flagName)
			}
			fs.String(flagName, string(text), usage)
		default:
			switch fieldValue.Kind() {
			case reflect.String:
				fs.String(flagName, fieldValue.String(), usage)
			case reflect.Bool:
				fs.Bool(flagName, fieldValue.Bool(), usage)
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
				fs.Int64(flagName, fieldValue.Int(), usage)
			case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
				fs.Uint64(flagName, fieldValue.Uint(), usage)
			case reflect.Float32, reflect.Float64:
				fs.Float64(flagName, fieldValue.Float(), usage)
			case reflect.Struct:
				if err := flagsFromStruct(fs, fieldValue, fieldPath); err != nil {
					return err
				}
				continue
			default:
				return errors.Errorf(`unsupported type "%s" of the field "%s"`, fieldType.Type.String(), keyPath)
			}
		}

		if err := fs.SetAnnotation(flagName, annotationKey, []string{keyPath}); err != nil {
			return err
		}
	}

	return nil
}

// KeyToFlagName converts config key path to the flag name, for example "etcd.connectTimeout" -> "etcd-connect-timeout".
func KeyToFlagName(keyPath string) string {
	str := regexpcache.MustCompile(`[A-Z]+`).ReplaceAllString(keyPath, "-$0")
	str = regexpcache.MustCompile(`[-.\s]+`).ReplaceAllString(str, "-")
	str = strings.Trim(str, "-")
	return strings.ToLower(str)
}

func flagKeyPath(flag *pflag.Flag) (string, bool) {
	if v := flag.Annotations[annotationKey]; len(v) == 1 {
		return v[0], true
	}
	return "", false
}
