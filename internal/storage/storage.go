package storage

import (
	"errors"

	"goldpeg/internal/model"
)

// Storage defines a sink for events.
type Storage interface {
	PutEventBatch(events []model.Event) error
}

// Fanout writes every batch to each sink in order and joins their errors.
type Fanout []Storage

func (f Fanout) PutEventBatch(events []model.Event) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.PutEventBatch(events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
