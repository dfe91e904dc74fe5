package core

import "reflect"

// ModuleKey identifies a loaded module either by direct identity (the value
// registered for it) or by its name. Two keys are equal when they share an
// identity or, failing that, a name; the name comparison tolerates a module
// that was reloaded under a new identity.
type ModuleKey struct {
	Name     string
	Identity any
}

// NameKey returns a key that addresses a module by name only.
func NameKey(name string) ModuleKey { return ModuleKey{Name: name} }

// Equal reports whether k and o address the same module.
func (k ModuleKey) Equal(o ModuleKey) bool {
	if k.Identity != nil && o.Identity != nil && sameIdentity(k.Identity, o.Identity) {
		return true
	}
	return k.Name != "" && k.Name == o.Name
}

// String returns the module name.
func (k ModuleKey) String() string {
	if k.Name != "" {
		return k.Name
	}
	if k.Identity != nil {
		return TypeName(reflect.TypeOf(k.Identity))
	}
	return "<anonymous>"
}

func sameIdentity(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Slice:
		return va.Pointer() == vb.Pointer()
	}
	if va.Type().Comparable() {
		return a == b
	}
	return false
}
