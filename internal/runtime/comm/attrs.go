package comm

import (
	"github.com/drblury/mpiflow/internal/engine"
	"github.com/drblury/mpiflow/internal/runtime/attrs"
)

func family(c Communicator) (attrs.CommFamily, Comm) {
	cm := c.Deref()
	return attrs.CommFamily{Eng: cm.Engine()}, cm
}

// CreateKeyval registers a communicator attribute key for values of type T.
func CreateKeyval[T any](c Communicator) (attrs.UniqueKeyVal[T], error) {
	fam, _ := family(c)
	return attrs.CreateKeyval[T, engine.Comm](fam)
}

// GetAttr returns the value stored under slot on c without copying it.
func GetAttr[T any](c Communicator, slot attrs.Slot[T]) (*T, bool, error) {
	fam, cm := family(c)
	return attrs.Get[T](fam, cm.Raw(), slot)
}

// CreateAttr stores value under slot on c and returns the stored box.
func CreateAttr[T any](c Communicator, slot attrs.Slot[T], value T) (*T, error) {
	fam, cm := family(c)
	return attrs.Create[T](fam, cm.Raw(), slot, value)
}

// DeleteAttr releases the value stored under slot on c.
func DeleteAttr[T any](c Communicator, slot attrs.Slot[T]) error {
	fam, cm := family(c)
	return attrs.Delete[T](fam, cm.Raw(), slot)
}
