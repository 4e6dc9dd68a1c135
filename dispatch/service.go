package dispatch

import (
	"context"
	"encoding/json"
	"reflect"

	"jsonrpc-gen/message"
	"jsonrpc-gen/registration"

	"github.com/pkg/errors"
)

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// methodType is one receiver method bound to its descriptor.
//
// Accepted shapes, with ctx and meta both optional and in that order:
//
//	func (r *T) Name([ctx context.Context,] [meta M,] p0 P0, ... pn Pn) (R, error)
//	func (r *T) Name([ctx context.Context,] [meta M,] p0 P0, ... pn Pn) error
type methodType struct {
	method    reflect.Method
	withCtx   bool
	metaType  reflect.Type // nil when the descriptor has no metadata
	argTypes  []reflect.Type
	hasResult bool
}

// RegisterService binds every method of iface to the receiver method with
// the same local name. rcvr must be a pointer to a struct.
func (d *Dispatcher) RegisterService(rcvr any, iface *registration.Interface) error {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Pointer || typ.Elem().Kind() != reflect.Struct {
		return errors.Errorf("dispatch: receiver must be a pointer to a struct, got %T", rcvr)
	}
	val := reflect.ValueOf(rcvr)

	for _, desc := range iface.Methods {
		mt, err := bindMethod(typ, desc)
		if err != nil {
			return errors.Wrapf(err, "dispatch: %s.%s", typ.Elem().Name(), desc.LocalName)
		}
		if err := d.Register(desc, mt.handler(val)); err != nil {
			return err
		}
	}
	return nil
}

func bindMethod(typ reflect.Type, desc registration.MethodDescriptor) (*methodType, error) {
	method, ok := typ.MethodByName(desc.LocalName)
	if !ok {
		return nil, errors.New("no such method")
	}

	mt := &methodType{method: method}
	ft := method.Type
	in := 1 // receiver
	if in < ft.NumIn() && ft.In(in) == contextType {
		mt.withCtx = true
		in++
	}
	if desc.HasMetadata() {
		if in >= ft.NumIn() {
			return nil, errors.New("missing metadata argument")
		}
		mt.metaType = ft.In(in)
		in++
	}
	for ; in < ft.NumIn(); in++ {
		mt.argTypes = append(mt.argTypes, ft.In(in))
	}
	if len(mt.argTypes) != len(desc.Params) {
		return nil, errors.Errorf("takes %d params, descriptor declares %d", len(mt.argTypes), len(desc.Params))
	}

	switch {
	case ft.NumOut() == 2 && ft.Out(1) == errorType:
		mt.hasResult = true
	case ft.NumOut() == 1 && ft.Out(0) == errorType:
	default:
		return nil, errors.New("must return (R, error) or error")
	}
	return mt, nil
}

func (mt *methodType) handler(rcvr reflect.Value) HandlerFunc {
	return func(ctx context.Context, meta any, params json.RawMessage) (any, error) {
		args := make([]reflect.Value, 0, 3+len(mt.argTypes))
		args = append(args, rcvr)
		if mt.withCtx {
			args = append(args, reflect.ValueOf(ctx))
		}
		if mt.metaType != nil {
			mv, err := metaValue(mt.metaType, meta)
			if err != nil {
				return nil, err
			}
			args = append(args, mv)
		}

		argv, err := decodePositional(params, mt.argTypes)
		if err != nil {
			return nil, err
		}
		args = append(args, argv...)

		out := mt.method.Func.Call(args)
		errv := out[len(out)-1]
		if !errv.IsNil() {
			return nil, errv.Interface().(error)
		}
		if !mt.hasResult {
			return nil, nil
		}
		return out[0].Interface(), nil
	}
}

func metaValue(typ reflect.Type, meta any) (reflect.Value, error) {
	if meta == nil {
		return reflect.Zero(typ), nil
	}
	v := reflect.ValueOf(meta)
	if !v.Type().AssignableTo(typ) {
		return reflect.Value{}, message.NewErrorf(message.InternalError, "metadata %T does not fit %s", meta, typ)
	}
	return v, nil
}

// decodePositional unpacks a params array into typed values. Missing
// trailing entries are allowed for pointer parameters and decode as nil.
func decodePositional(params json.RawMessage, types []reflect.Type) ([]reflect.Value, error) {
	var raw []json.RawMessage
	if len(params) > 0 {
		if err := json.Unmarshal(params, &raw); err != nil {
			return nil, message.NewErrorf(message.InvalidParams, "params must be a positional array")
		}
	}
	if len(raw) > len(types) {
		return nil, message.NewErrorf(message.InvalidParams, "expected %d params, got %d", len(types), len(raw))
	}

	values := make([]reflect.Value, len(types))
	for i, typ := range types {
		if i >= len(raw) {
			if typ.Kind() != reflect.Pointer {
				return nil, message.NewErrorf(message.InvalidParams, "expected %d params, got %d", len(types), len(raw))
			}
			values[i] = reflect.Zero(typ)
			continue
		}
		ptr := reflect.New(typ)
		if err := json.Unmarshal(raw[i], ptr.Interface()); err != nil {
			return nil, message.NewErrorf(message.InvalidParams, "param %d: %v", i, err)
		}
		values[i] = ptr.Elem()
	}
	return values, nil
}
