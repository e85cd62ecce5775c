package terminal

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/monomirror/monomirror/pkg/config"
)

func configureCmd(t *Term, args string) error {
	switch args {
	case "-list":
		return configureList(t)
	case "-save":
		return config.SaveConfig(t.conf)
	case "":
		return fmt.Errorf("wrong number of arguments to \"config\"")
	default:
		return configureSet(t, args)
	}
}

type configureIterator struct {
	prefix   string
	cfgValue reflect.Value
	cfgType  reflect.Type
	i        int
}

func iterateStruct(prefix string, v reflect.Value) *configureIterator {
	return &configureIterator{prefix, v, v.Type(), -1}
}

func iterateConfiguration(conf *config.Config) *configureIterator {
	return iterateStruct("", reflect.ValueOf(conf).Elem())
}

func (it *configureIterator) Next() bool {
	it.i++
	return it.i < it.cfgValue.NumField()
}

func (it *configureIterator) Field() (name string, field reflect.Value) {
	name = it.cfgType.Field(it.i).Tag.Get("yaml")
	if comma := strings.Index(name, ","); comma >= 0 {
		name = name[:comma]
	}
	if name != "" {
		name = it.prefix + name
	}
	field = it.cfgValue.Field(it.i)
	return
}

// configureFindFieldByName finds a parameter by name. Parameters of nested
// structs, such as the offsets, are named parent.child.
func configureFindFieldByName(conf *config.Config, name string) reflect.Value {
	var find func(it *configureIterator) reflect.Value
	find = func(it *configureIterator) reflect.Value {
		for it.Next() {
			fieldName, field := it.Field()
			if fieldName == "" {
				continue
			}
			if fieldName == name {
				return field
			}
			if field.Kind() == reflect.Struct && strings.HasPrefix(name, fieldName+".") {
				return find(iterateStruct(fieldName+".", field))
			}
		}
		return reflect.Value{}
	}
	return find(iterateConfiguration(conf))
}

func configureList(t *Term) error {
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 1, ' ', 0)

	var list func(it *configureIterator)
	list = func(it *configureIterator) {
		for it.Next() {
			fieldName, field := it.Field()
			if fieldName == "" {
				continue
			}
			switch field.Kind() {
			case reflect.Struct:
				list(iterateStruct(fieldName+".", field))
			case reflect.Uint32:
				fmt.Fprintf(w, "%s\t%#x\n", fieldName, field.Uint())
			case reflect.Map:
				if field.Len() == 0 {
					fmt.Fprintf(w, "%s\t<not defined>\n", fieldName)
				} else {
					fmt.Fprintf(w, "%s\t%v\n", fieldName, field)
				}
			default:
				fmt.Fprintf(w, "%s\t%v\n", fieldName, field)
			}
		}
	}
	list(iterateConfiguration(t.conf))
	return w.Flush()
}

func split2PartsBySpace(s string) []string {
	v := strings.SplitN(s, " ", 2)
	for i := range v {
		v[i] = strings.TrimSpace(v[i])
	}
	return v
}

func configureSet(t *Term, args string) error {
	v := split2PartsBySpace(args)

	cfgname := v[0]
	var rest string
	if len(v) == 2 {
		rest = v[1]
	}

	if cfgname == "alias" {
		return configureSetAlias(t, rest)
	}

	field := configureFindFieldByName(t.conf, cfgname)
	if !field.IsValid() || !field.CanSet() {
		return fmt.Errorf("%q is not a configuration parameter", cfgname)
	}

	switch field.Kind() {
	case reflect.Int:
		n, err := strconv.Atoi(rest)
		if err != nil {
			return fmt.Errorf("argument to %q must be a number", cfgname)
		}
		if n < 0 {
			return fmt.Errorf("argument to %q must be a number greater than zero", cfgname)
		}
		field.SetInt(int64(n))
	case reflect.Uint32:
		n, err := strconv.ParseUint(rest, 0, 32)
		if err != nil {
			return fmt.Errorf("argument to %q must be a 32 bit offset", cfgname)
		}
		field.SetUint(n)
	case reflect.Bool:
		field.SetBool(rest == "true")
	case reflect.String:
		field.SetString(rest)
	default:
		return fmt.Errorf("unsupported type for configuration key %q", cfgname)
	}
	return nil
}

func configureSetAlias(t *Term, rest string) error {
	argv, err := splitArgs(rest)
	if err != nil {
		return err
	}
	switch len(argv) {
	case 1: // delete alias rule
		for k := range t.conf.Aliases {
			v := t.conf.Aliases[k]
			for i := range v {
				if v[i] == argv[0] {
					copy(v[i:], v[i+1:])
					t.conf.Aliases[k] = v[:len(v)-1]
					break
				}
			}
		}
	case 2: // add alias rule
		alias, cmd := argv[1], argv[0]
		if t.conf.Aliases == nil {
			t.conf.Aliases = make(map[string][]string)
		}
		t.conf.Aliases[cmd] = append(t.conf.Aliases[cmd], alias)
	default:
		return fmt.Errorf("wrong number of arguments to \"config alias\"")
	}
	t.cmds.Merge(t.conf.Aliases)
	return nil
}
