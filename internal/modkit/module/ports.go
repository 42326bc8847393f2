package module

import "reflect"

// PortSet marks a module-defined bundle of port interfaces.
// Modules declare their own concrete interface types and hand them back
// from Ports
type PortSet = any

// PortsOf extracts an interface T from a module's Ports() value.
// A direct implementation matches first; otherwise the exported fields
// of a struct bundle are checked in order. ok is false when nothing fits
func PortsOf[T any](m Module) (t T, ok bool) {
	p := m.Ports()
	if p == nil {
		return t, false
	}
	if v, ok2 := p.(T); ok2 {
		return v, true
	}
	rv := reflect.ValueOf(p)
	rt := rv.Type()
	if rt.Kind() == reflect.Struct {
		for i := 0; i < rt.NumField(); i++ {
			f := rv.Field(i)
			// unexported fields stay invisible
			if !f.CanInterface() {
				continue
			}
			if v, ok2 := f.Interface().(T); ok2 {
				return v, true
			}
		}
	}
	return t, false
}

// MustPortsOf is PortsOf that panics, naming the module, when the port
// is missing
func MustPortsOf[T any](m Module) T {
	if v, ok := PortsOf[T](m); ok {
		return v
	}
	panic("module: requested port not found on module " + m.Name())
}
