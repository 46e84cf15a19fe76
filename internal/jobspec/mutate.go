// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package jobspec

import (
	"encoding/json"

	"github.com/flux-framework/flux-core-sub008/api"
	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
)

// AttrSet sets attributes.<path> to value, creating intermediate objects
// as needed. path uses "." as a separator and is rooted at attributes
// itself, e.g. "user.foo.bar" or "system.cwd" — matching the original's
// flux_jobspec1_attr_pack(jobspec, "system.cwd", ...) addressing, which is
// not confined to the user subtree. This is the frobnicate-time mutation
// primitive, spec.md §4.3's attr_set.
func AttrSet(spec *api.Jobspec, path string, value any) error {
	root, err := attrsAsMap(spec)
	if err != nil {
		return err
	}
	if err := setPath(root, splitPath(path), value); err != nil {
		return err
	}
	return writeAttrs(spec, root)
}

// AttrDel removes attributes.<path>. It is not an error to delete a path
// that does not exist.
func AttrDel(spec *api.Jobspec, path string) error {
	root, err := attrsAsMap(spec)
	if err != nil {
		return err
	}
	delPath(root, splitPath(path))
	return writeAttrs(spec, root)
}

// AttrUnpack decodes attributes.<path> into v, spec.md §4.3's
// attr_unpack. Returns ferrors.CodeNoSuchEntry if the path is absent.
func AttrUnpack(spec *api.Jobspec, path string, v any) error {
	root, err := attrsAsMap(spec)
	if err != nil {
		return err
	}
	node, ok := getPath(root, splitPath(path))
	if !ok {
		return ferrors.NewAt(ferrors.CodeNoSuchEntry, path, "no such attribute")
	}
	buf, err := json.Marshal(node)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, v)
}

// AttrGetString reads a string-valued attributes.<path>.
func AttrGetString(spec *api.Jobspec, path string) (string, error) {
	var s string
	if err := AttrUnpack(spec, path, &s); err != nil {
		return "", err
	}
	return s, nil
}

// AttrGetInt64 reads an integer-valued attributes.<path>.
func AttrGetInt64(spec *api.Jobspec, path string) (int64, error) {
	var f float64
	if err := AttrUnpack(spec, path, &f); err != nil {
		return 0, err
	}
	return int64(f), nil
}

// AttrGetFloat64 reads a float-valued attributes.<path>.
func AttrGetFloat64(spec *api.Jobspec, path string) (float64, error) {
	var f float64
	if err := AttrUnpack(spec, path, &f); err != nil {
		return 0, err
	}
	return f, nil
}

// AttrGetBool reads a bool-valued attributes.<path>.
func AttrGetBool(spec *api.Jobspec, path string) (bool, error) {
	var b bool
	if err := AttrUnpack(spec, path, &b); err != nil {
		return false, err
	}
	return b, nil
}

// SetEnv sets attributes.system.environment[name] = value, spec.md §4.3's
// setenv.
func SetEnv(spec *api.Jobspec, name, value string) {
	if spec.Attributes.System.Environment == nil {
		spec.Attributes.System.Environment = make(map[string]string)
	}
	spec.Attributes.System.Environment[name] = value
}

// UnsetEnv removes name from attributes.system.environment, spec.md §4.3's
// unsetenv. Not an error if absent.
func UnsetEnv(spec *api.Jobspec, name string) {
	delete(spec.Attributes.System.Environment, name)
}

// SetCwd sets attributes.system.cwd, spec.md §4.3's set_cwd.
func SetCwd(spec *api.Jobspec, dir string) {
	spec.Attributes.System.Cwd = dir
}

// Redirection targets for SetStdio, spec.md §4.3's set_stdin/stdout/stderr.
const (
	StdioStdin  = "stdin"
	StdioStdout = "stdout"
	StdioStderr = "stderr"
)

// SetStdio redirects one of the three standard streams to path by writing
// it into attributes.system.shell.options, the way the shell plugin reads
// redirection requests back out at exec time.
func SetStdio(spec *api.Jobspec, stream, path string) error {
	switch stream {
	case StdioStdin, StdioStdout, StdioStderr:
	default:
		return ferrors.Newf(ferrors.CodeInvalidArgument, "unknown stdio stream %q", stream)
	}
	if spec.Attributes.System.Shell == nil {
		spec.Attributes.System.Shell = &api.ShellAttributes{}
	}
	if spec.Attributes.System.Shell.Options == nil {
		spec.Attributes.System.Shell.Options = make(map[string]any)
	}
	spec.Attributes.System.Shell.Options[stream] = path
	return nil
}

// attrsAsMap decodes the whole attributes object — both system and user —
// into one generic tree rooted at "system"/"user", so AttrSet/AttrDel/
// AttrUnpack can address any attributes.<path>, not just the user subtree
// (matching jobspec1_attr_get/set/del/unpack in the original, which build
// "attributes.%s" over arbitrary names like "system.cwd").
func attrsAsMap(spec *api.Jobspec) (map[string]any, error) {
	sysBuf, err := json.Marshal(spec.Attributes.System)
	if err != nil {
		return nil, err
	}
	var sys map[string]any
	if err := json.Unmarshal(sysBuf, &sys); err != nil {
		return nil, err
	}
	if sys == nil {
		sys = make(map[string]any)
	}

	user := make(map[string]any)
	if len(spec.Attributes.User) > 0 {
		if err := json.Unmarshal(spec.Attributes.User, &user); err != nil {
			return nil, ferrors.NewAt(ferrors.CodeInvalidArgument, "attributes.user", "must be an object")
		}
	}

	return map[string]any{"system": sys, "user": user}, nil
}

// writeAttrs re-marshals root's "system" branch back into the typed
// SystemAttributes struct and "user" back into raw JSON.
func writeAttrs(spec *api.Jobspec, root map[string]any) error {
	sys, _ := root["system"].(map[string]any)
	sysBuf, err := json.Marshal(sys)
	if err != nil {
		return err
	}
	var typed api.SystemAttributes
	if err := json.Unmarshal(sysBuf, &typed); err != nil {
		return ferrors.NewAt(ferrors.CodeInvalidArgument, "attributes.system", "must be an object")
	}
	spec.Attributes.System = typed

	user, _ := root["user"].(map[string]any)
	userBuf, err := json.Marshal(user)
	if err != nil {
		return err
	}
	spec.Attributes.User = userBuf
	return nil
}

func splitPath(path string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			parts = append(parts, path[start:i])
			start = i + 1
		}
	}
	parts = append(parts, path[start:])
	return parts
}

func setPath(root map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return ferrors.New(ferrors.CodeInvalidArgument, "empty attribute path")
	}
	cur := root
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p]
		if !ok {
			m := make(map[string]any)
			cur[p] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return ferrors.Newf(ferrors.CodeInvalidArgument, "attribute path component %q is not an object", p)
		}
		cur = m
	}
	cur[parts[len(parts)-1]] = value
	return nil
}

func delPath(root map[string]any, parts []string) {
	cur := root
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p]
		if !ok {
			return
		}
		m, ok := next.(map[string]any)
		if !ok {
			return
		}
		cur = m
	}
	delete(cur, parts[len(parts)-1])
}

func getPath(root map[string]any, parts []string) (any, bool) {
	var cur any = root
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}
