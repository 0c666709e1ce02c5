package buildsys

import (
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
)

// resolvePath joins the given path segments. A segment starting with "//" restarts at the project root,
// one starting with "/" is absolute and anything else is relative to the previous result. The first
// segment is relative to dir.
func resolvePath(projectRoot, dir string, segments ...string) string {
	result := dir

	for _, segment := range segments {
		switch {
		case strings.HasPrefix(segment, "//"):
			result = filepath.Join(projectRoot, segment[2:])
		case strings.HasPrefix(segment, "/"):
			result = filepath.Join(filepath.VolumeName(result), segment)
		case filepath.IsAbs(segment):
			result = segment
		default:
			result = filepath.Join(result, segment)
		}
	}

	return filepath.Clean(result)
}

// displayPath turns paths inside the project into the //-notation
func displayPath(projectRoot, path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	rel, err := filepath.Rel(projectRoot, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}

	return "//" + filepath.ToSlash(rel)
}

func envName(name string) string {
	if runtime.GOOS == "windows" {
		return strings.ToUpper(name)
	}
	return name
}

// mergeEnv returns os.Environ() with overrides applied. The result is sorted to keep it stable.
func mergeEnv(overrides ...map[string]string) []string {
	values := make(map[string]string)
	for _, item := range os.Environ() {
		parts := strings.SplitN(item, "=", 2)
		if len(parts) == 2 && parts[0] != "" {
			values[envName(parts[0])] = parts[1]
		}
	}

	for _, layer := range overrides {
		for name, value := range layer {
			values[envName(name)] = value
		}
	}

	result := make([]string, 0, len(values))
	for name, value := range values {
		result = append(result, name+"="+value)
	}
	sort.Strings(result)

	return result
}

func toStringSlice(list *starlark.List, field string) ([]string, error) {
	if list == nil {
		return []string{}, nil
	}

	result := make([]string, 0, list.Len())
	for idx := 0; idx < list.Len(); idx++ {
		switch value := list.Index(idx).(type) {
		case starlark.String:
			result = append(result, value.GoString())
		case Path:
			result = append(result, string(value))
		default:
			return nil, eris.Errorf("%s: item %d is a %s but only strings and paths are allowed", field, idx, value.Type())
		}
	}
	return result, nil
}

func toStarlark(value interface{}) (starlark.Value, error) {
	switch value := value.(type) {
	case nil:
		return starlark.None, nil
	case string:
		return starlark.String(value), nil
	case bool:
		return starlark.Bool(value), nil
	case int:
		return starlark.MakeInt(value), nil
	case int64:
		return starlark.MakeInt64(value), nil
	case float64:
		return starlark.Float(value), nil
	}

	ref := reflect.ValueOf(value)
	switch ref.Kind() {
	case reflect.Slice, reflect.Array:
		items := make(starlark.Tuple, ref.Len())
		for idx := range items {
			item, err := toStarlark(ref.Index(idx).Interface())
			if err != nil {
				return nil, err
			}
			items[idx] = item
		}
		return items, nil
	case reflect.Map:
		dict := starlark.NewDict(ref.Len())
		iter := ref.MapRange()
		for iter.Next() {
			key, err := toStarlark(iter.Key().Interface())
			if err != nil {
				return nil, err
			}

			item, err := toStarlark(iter.Value().Interface())
			if err != nil {
				return nil, err
			}

			if err = dict.SetKey(key, item); err != nil {
				return nil, err
			}
		}
		return dict, nil
	}

	return nil, eris.Errorf("can't convert value of type %T", value)
}
