// Package adapter defines the persistence capability token authentication
// consumes: each backend names the base type its models must satisfy and
// looks a principal up by its identifier field.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/devmarvs/tokenauth/entity"
)

var (
	// ErrNotFound indicates no principal matched the identifier.
	ErrNotFound = errors.New("adapter: principal not found")
	// ErrNoAdapter indicates no adapter accepts the model.
	ErrNoAdapter = errors.New("adapter: no adapter supports model")
	// ErrIncompatibleModel indicates a model that does not satisfy an adapter's base type.
	ErrIncompatibleModel = errors.New("adapter: model does not satisfy base class")
)

// Record is a stored principal.
type Record interface {
	PrincipalID() string
	// AuthenticationToken returns the stored token, plain or digest.
	AuthenticationToken() string
}

// Adapter is one persistence backend.
type Adapter interface {
	Name() string
	// ModelsBaseClass is the type principal models must implement (interface
	// base) or embed (struct base) to be handled by this adapter.
	ModelsBaseClass() reflect.Type
	FindByIdentifier(ctx context.Context, ent entity.Entity, identifier string) (Record, error)
}

// Pinger is implemented by adapters that can report whether their backend
// is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check reports whether model satisfies the adapter's base class. model may
// be a value, a pointer or a reflect.Type.
func Check(a Adapter, model any) error {
	if a == nil {
		return ErrNoAdapter
	}
	t := modelType(model)
	if t == nil {
		return fmt.Errorf("%w: nil model", ErrIncompatibleModel)
	}
	if !satisfies(t, a.ModelsBaseClass()) {
		return fmt.Errorf("%w: %s is not a %s (%s adapter)", ErrIncompatibleModel, t, a.ModelsBaseClass(), a.Name())
	}
	return nil
}

// Select returns the first adapter whose base class model satisfies.
func Select(adapters []Adapter, model any) (Adapter, error) {
	for _, a := range adapters {
		if a != nil && Check(a, model) == nil {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrNoAdapter, modelType(model))
}

func modelType(model any) reflect.Type {
	switch typed := model.(type) {
	case nil:
		return nil
	case reflect.Type:
		return typed
	default:
		return reflect.TypeOf(model)
	}
}

func satisfies(t, base reflect.Type) bool {
	if base == nil {
		return false
	}
	if base.Kind() == reflect.Interface {
		return t.Implements(base) || (t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(base))
	}

	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == base {
		return true
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.Anonymous {
			continue
		}
		if field.Type == base || field.Type == reflect.PointerTo(base) {
			return true
		}
	}
	return false
}
