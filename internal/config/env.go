package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// lookupFunc reports the value of an environment variable and whether it is set.
type lookupFunc func(key string) (string, bool)

var durationType = reflect.TypeOf(time.Duration(0))

// applyEnv overwrites every field tagged `env:"NAME"` whose variable is set,
// descending into nested structs.
func applyEnv(target interface{}, lookup lookupFunc) error {
	v := reflect.Indirect(reflect.ValueOf(target))
	if v.Kind() != reflect.Struct {
		return nil
	}
	return applyEnvStruct(v, lookup)
}

func applyEnvStruct(v reflect.Value, lookup lookupFunc) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field, fv := t.Field(i), v.Field(i)
		if !field.IsExported() {
			continue
		}
		if fv.Kind() == reflect.Struct {
			if err := applyEnvStruct(fv, lookup); err != nil {
				return err
			}
			continue
		}

		name := field.Tag.Get("env")
		if name == "" {
			continue
		}
		raw, ok := lookup(name)
		if !ok {
			continue
		}
		if err := decodeEnv(fv, raw); err != nil {
			return fmt.Errorf("%s (%s): %w", name, field.Name, err)
		}
	}
	return nil
}

// decodeEnv parses raw into fv. Lists are comma separated and blank items are
// dropped.
func decodeEnv(fv reflect.Value, raw string) error {
	if fv.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration format: %w", err)
		}
		fv.SetInt(int64(d))
		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer format: %w", err)
		}
		fv.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid boolean format: %w", err)
		}
		fv.SetBool(b)
	case reflect.Slice:
		if fv.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported list type %s", fv.Type())
		}
		var items []string
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		fv.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field type %s", fv.Kind())
	}
	return nil
}
