package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation некорректное правило/условие/действие;
	// движок пропускает такое правило, не прерывая цикл
	ErrValidation = errors.New("validation error")

	// ErrDependencyTimeout внешняя зависимость не ответила вовремя
	ErrDependencyTimeout = errors.New("dependency timeout")

	// ErrCycleInProgress цикл для паблишера уже выполняется
	ErrCycleInProgress = errors.New("cycle already in progress")
)

// MutationError действие не удалось применить к конфигурации
type MutationError struct {
	Action Action
	Err    error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("action %s on %q failed: %v", e.Action.Type, e.Action.Target, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError оборачивает ошибку мутации с указанием действия
func NewMutationError(action Action, err error) *MutationError {
	return &MutationError{Action: action, Err: err}
}
