// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/spf13/pflag"
)

// FlagsFromParams creates a [pflag.FlagSet] with flags bound to the
// tagged fields of params. params must be a pointer to a struct.
// Panics on invalid input (programming error, not runtime data).
//
//	var params createParams
//	command := &cli.Command{
//	    Flags: func() *pflag.FlagSet {
//	        return cli.FlagsFromParams("create", &params)
//	    },
//	    Run: func(args []string) error {
//	        // params fields are populated after flag parsing
//	    },
//	}
func FlagsFromParams(name string, params any) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	if err := BindFlags(params, flagSet); err != nil {
		panic(fmt.Sprintf("cli.FlagsFromParams(%q): %v", name, err))
	}
	return flagSet
}

// BindFlags registers pflag entries for each tagged field in params.
//
// Three tags control the binding:
//
//   - flag:"name" is the long flag name. Fields without a flag tag
//     are skipped.
//   - desc:"help text" is the flag's help description.
//   - default:"value" is the default, parsed according to the
//     field's Go type; the zero value otherwise.
//
// Supported field types: string, bool, int, int64, []string.
// Embedded structs are bound recursively (this is how [JSONOutput]
// contributes --json).
func BindFlags(params any, flagSet *pflag.FlagSet) error {
	value := reflect.ValueOf(params)
	if value.Kind() != reflect.Ptr || value.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("params must be a pointer to a struct, got %T", params)
	}
	return bindStructFields(value.Elem(), flagSet)
}

func bindStructFields(structValue reflect.Value, flagSet *pflag.FlagSet) error {
	structType := structValue.Type()

	for i := range structType.NumField() {
		field := structType.Field(i)
		fieldValue := structValue.Field(i)

		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			if err := bindStructFields(fieldValue, flagSet); err != nil {
				return fmt.Errorf("embedded %s: %w", field.Name, err)
			}
			continue
		}

		name := field.Tag.Get("flag")
		if name == "" {
			continue
		}
		description := field.Tag.Get("desc")
		defaultString := field.Tag.Get("default")

		if !fieldValue.CanAddr() {
			return fmt.Errorf("field %s is not addressable", field.Name)
		}

		switch pointer := fieldValue.Addr().Interface().(type) {
		case *string:
			flagSet.StringVar(pointer, name, defaultString, description)

		case *bool:
			defaultValue := false
			if defaultString != "" {
				parsed, err := strconv.ParseBool(defaultString)
				if err != nil {
					return fmt.Errorf("field %s: bad bool default %q", field.Name, defaultString)
				}
				defaultValue = parsed
			}
			flagSet.BoolVar(pointer, name, defaultValue, description)

		case *int:
			defaultValue := 0
			if defaultString != "" {
				parsed, err := strconv.Atoi(defaultString)
				if err != nil {
					return fmt.Errorf("field %s: bad int default %q", field.Name, defaultString)
				}
				defaultValue = parsed
			}
			flagSet.IntVar(pointer, name, defaultValue, description)

		case *int64:
			var defaultValue int64
			if defaultString != "" {
				parsed, err := strconv.ParseInt(defaultString, 10, 64)
				if err != nil {
					return fmt.Errorf("field %s: bad int64 default %q", field.Name, defaultString)
				}
				defaultValue = parsed
			}
			flagSet.Int64Var(pointer, name, defaultValue, description)

		case *[]string:
			flagSet.StringSliceVar(pointer, name, nil, description)

		default:
			return fmt.Errorf("field %s: unsupported flag type %s", field.Name, field.Type)
		}
	}
	return nil
}
