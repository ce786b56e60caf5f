package vfskit

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// DriverOptions is the raw option block of one driver, as read from the
// environment or a mount table file.
type DriverOptions map[string]any

// Decode decodes the options into target using its mapstructure tags.
// String values are converted to the target field types.
func (o DriverOptions) Decode(target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(map[string]any(o)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// DriverFactory creates an Adapter from driver options
type DriverFactory func(ctx context.Context, opts DriverOptions) (Adapter, error)

var (
	driverFactories = make(map[string]DriverFactory)
	factoryMutex    sync.RWMutex
)

// RegisterDriver registers a driver factory function. Drivers call it from
// init, so importing a driver package makes it available by name.
func RegisterDriver(name string, factory DriverFactory) {
	factoryMutex.Lock()
	defer factoryMutex.Unlock()
	driverFactories[name] = factory
}

// CreateAdapter creates an adapter with the named driver.
func CreateAdapter(ctx context.Context, driver string, opts DriverOptions) (Adapter, error) {
	factoryMutex.RLock()
	factory, exists := driverFactories[driver]
	factoryMutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("driver %s not registered", driver)
	}

	return factory(ctx, opts)
}

// Drivers returns the names of the registered drivers.
func Drivers() []string {
	factoryMutex.RLock()
	defer factoryMutex.RUnlock()

	names := make([]string, 0, len(driverFactories))
	for name := range driverFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
